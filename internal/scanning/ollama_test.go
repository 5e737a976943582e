package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

func pngFixture() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		scanner *Ollama
	)

	BeforeEach(func() {
		var err error
		server = ghttp.NewServer()
		scanner, err = NewOllama(server.URL(), "llava:1.6")
		Expect(err).NotTo(HaveOccurred())
		scanner.now = func() time.Time { return time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC) }
	})

	AfterEach(func() {
		server.Close()
	})

	It("should send the image and parse the reply", func() {
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
			func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				var req ollamaChatRequest
				Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
				Expect(req.Model).To(Equal("llava:1.6"))
				Expect(req.Stream).To(BeFalse())
				Expect(req.Messages).To(HaveLen(2))
				Expect(req.Messages[1].Images).To(HaveLen(1))
			},
			ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
				Message: ollamaMessage{Role: "assistant", Content: `{"merchant":"Cafe","date":"2024-05-01","amount":12.5,"currency":"EUR","category":"Meals"}`},
				Done:    true,
			}),
		))

		data, err := scanner.ScanReceipt(context.Background(), pngFixture(), "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(data.Merchant).To(Equal("Cafe"))
		Expect(data.Currency).To(Equal("EUR"))
		Expect(data.Amount.String()).To(Equal("12.5"))
	})

	It("should surface API errors", func() {
		server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, `{"error":"model not found"}`))

		_, err := scanner.ScanReceipt(context.Background(), pngFixture(), "image/png")
		Expect(err).To(MatchError(ContainSubstring("status 404")))
	})

	It("should reject files that are not images", func() {
		_, err := scanner.ScanReceipt(context.Background(), []byte("plain text"), "text/plain")
		Expect(err).To(MatchError(ErrUnsupportedFormat))
		Expect(server.ReceivedRequests()).To(BeEmpty())
	})

	It("should reject a non-http url", func() {
		_, err := NewOllama("localhost:11434", "")
		Expect(err).To(HaveOccurred())
	})
})
