package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/zombor/expense-tracker/internal/apperr"
	"github.com/zombor/expense-tracker/internal/expense"
	"github.com/zombor/expense-tracker/internal/notification"
)

func TestAPI(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "API Client Suite")
}

var _ = Describe("Client", func() {
	var (
		server *ghttp.Server
		client *Client
		ctx    context.Context
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		server = ghttp.NewServer()
		client, err = NewClient(server.URL() + "/")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("NewClient", func() {
		It("should reject a non-http url", func() {
			_, err := NewClient("ftp://example.com")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Login", func() {
		It("should post the credentials and decode the token", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/auth/login"),
				ghttp.VerifyJSON(`{"email":"jane@example.com","password":"s3cret"}`),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]string{"token": "abc", "userId": "user-1"}),
			))

			creds, err := client.Login(ctx, "jane@example.com", "s3cret")
			Expect(err).NotTo(HaveOccurred())
			Expect(creds.Token).To(Equal("abc"))
			Expect(creds.UserID).To(Equal("user-1"))
		})

		It("should classify 401 as an auth error", func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusUnauthorized, map[string]string{"message": "bad credentials"}))

			_, err := client.Login(ctx, "jane@example.com", "wrong")
			Expect(errors.Is(err, apperr.ErrAuth)).To(BeTrue())
			Expect(err).To(MatchError(ContainSubstring("bad credentials")))
		})
	})

	Describe("error classification", func() {
		It("should treat 5xx as a network error", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusServiceUnavailable, "maintenance"))

			_, err := client.ListExpenses(ctx, "tok", "user-1", expense.Filter{})
			Expect(errors.Is(err, apperr.ErrNetwork)).To(BeTrue())
			Expect(apperr.IsRetryable(err)).To(BeTrue())
		})

		It("should treat other 4xx as a server rejection with the reason", func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusUnprocessableEntity,
				map[string]any{"error": map[string]string{"message": "amount exceeds policy"}}))

			_, err := client.SubmitExpense(ctx, "tok", &expense.Report{})
			var rejection *apperr.ServerRejection
			Expect(errors.As(err, &rejection)).To(BeTrue())
			Expect(rejection.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			Expect(rejection.Reason).To(Equal("amount exceeds policy"))
		})

		It("should fall back to the raw body as the reason", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusConflict, "already approved"))

			_, err := client.TransitionExpense(ctx, "tok", "42", "approve", "")
			var rejection *apperr.ServerRejection
			Expect(errors.As(err, &rejection)).To(BeTrue())
			Expect(rejection.Reason).To(Equal("already approved"))
		})

		It("should treat an unreachable server as a network error", func() {
			server.Close()

			_, err := client.ListNotifications(ctx, "tok", "user-1")
			Expect(errors.Is(err, apperr.ErrNetwork)).To(BeTrue())
		})
	})

	Describe("ListExpenses", func() {
		It("should send the token and filter", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodGet, "/expenses/user-1", "category=Meals&endDate=2024-03-31&startDate=2024-03-01"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer tok"),
				ghttp.RespondWith(http.StatusOK, `[{"id":"1","date":"2024-03-02","category":"Meals","amount":12.5,"currency":"USD","status":"Pending"}]`),
			))

			reports, err := client.ListExpenses(ctx, "tok", "user-1", expense.Filter{
				StartDate: "2024-03-01",
				EndDate:   "2024-03-31",
				Category:  expense.CategoryMeals,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(reports).To(HaveLen(1))
			Expect(reports[0].Amount.Equal(decimal.RequireFromString("12.5"))).To(BeTrue())
			Expect(reports[0].Status).To(Equal(expense.StatusPending))
		})

		It("should accept an envelope", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"expenses":[{"id":"1"},{"id":"2"}],"total":2}`))

			reports, err := client.ListExpenses(ctx, "tok", "user-1", expense.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(reports).To(HaveLen(2))
		})

		It("should reject a body that is not a list", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"ok":true}`))

			_, err := client.ListExpenses(ctx, "tok", "user-1", expense.Filter{})
			Expect(err).To(MatchError(ContainSubstring("expected a list")))
		})
	})

	Describe("SubmitExpense", func() {
		It("should post the report and return the server copy", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/expenses"),
				ghttp.VerifyJSON(`{"ownerId":"user-1","date":"2024-03-10","category":"Meals","amount":"42.1","currency":"USD","description":"Lunch"}`),
				ghttp.RespondWith(http.StatusCreated, `{"id":"srv-9","status":"Submitted"}`),
			))

			created, err := client.SubmitExpense(ctx, "tok", &expense.Report{
				OwnerID:     "user-1",
				Date:        "2024-03-10",
				Category:    expense.CategoryMeals,
				Amount:      decimal.RequireFromString("42.10"),
				Currency:    "USD",
				Description: "Lunch",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(created.ID).To(Equal("srv-9"))
		})

		It("should fail when the response has no id", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusCreated, ``))

			_, err := client.SubmitExpense(ctx, "tok", &expense.Report{})
			Expect(err).To(MatchError(ContainSubstring("no id")))
		})
	})

	Describe("TransitionExpense", func() {
		It("should forward the message", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/expenses/42/request-info"),
				ghttp.VerifyJSON(`{"message":"Which client?"}`),
				ghttp.RespondWith(http.StatusOK, `{"id":"42","status":"InfoRequested"}`),
			))

			report, err := client.TransitionExpense(ctx, "tok", "42", "request-info", "Which client?")
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Status).To(Equal(expense.StatusInfoRequested))
		})

		It("should accept an empty confirmation", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/expenses/42/approve"),
				ghttp.RespondWith(http.StatusNoContent, nil),
			))

			report, err := client.TransitionExpense(ctx, "tok", "42", "approve", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(report).To(BeNil())
		})
	})

	Describe("notifications", func() {
		It("should create a notification", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/notifications"),
				ghttp.VerifyJSON(`{"recipientId":"user-1","reportId":"42","type":"EXPENSE_APPROVED","message":"ok"}`),
				ghttp.RespondWith(http.StatusCreated, nil),
			))

			Expect(client.SendNotification(ctx, "tok", notification.Outgoing{
				RecipientID: "user-1",
				ReportID:    "42",
				Type:        notification.TypeExpenseApproved,
				Message:     "ok",
			})).To(Succeed())
		})

		It("should list and mark notifications", func() {
			server.AppendHandlers(
				ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodGet, "/users/user-1/notifications"),
					ghttp.RespondWith(http.StatusOK, `{"notifications":[{"id":"n1","message":"hi","read":false}]}`),
				),
				ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodPatch, "/notifications/n1/read"),
					ghttp.RespondWith(http.StatusNoContent, nil),
				),
			)

			list, err := client.ListNotifications(ctx, "tok", "user-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(1))
			Expect(client.MarkNotificationRead(ctx, "tok", "n1")).To(Succeed())
		})
	})

	Describe("CheckCompliance", func() {
		It("should decode the verdict", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/policy/compliance-check"),
				ghttp.RespondWith(http.StatusOK, `{"isCompliant":false,"issues":["Receipt required"]}`),
			))

			verdict, err := client.CheckCompliance(ctx, "tok", expense.Input{})
			Expect(err).NotTo(HaveOccurred())
			Expect(verdict.Compliant).To(BeFalse())
			Expect(verdict.Issues).To(ConsistOf("Receipt required"))
		})
	})

	Describe("UploadReceipt", func() {
		It("should send the file as multipart form data", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/receipts"),
				func(w http.ResponseWriter, r *http.Request) {
					defer GinkgoRecover()
					file, header, err := r.FormFile("file")
					Expect(err).NotTo(HaveOccurred())
					defer file.Close()
					Expect(header.Filename).To(Equal("lunch.jpg"))
					Expect(header.Header.Get("Content-Type")).To(Equal("image/jpeg"))
					data, err := io.ReadAll(file)
					Expect(err).NotTo(HaveOccurred())
					Expect(string(data)).To(Equal("jpeg-bytes"))
				},
				ghttp.RespondWith(http.StatusCreated, `{"ref":"rcpt-1"}`),
			))

			ref, err := client.UploadReceipt(ctx, "tok", "lunch.jpg", []byte("jpeg-bytes"), "image/jpeg")
			Expect(err).NotTo(HaveOccurred())
			Expect(ref).To(Equal("rcpt-1"))
		})
	})

	Describe("rate limiting", func() {
		It("should give up when the limiter cannot admit a request before the deadline", func() {
			limited, err := NewClient(server.URL(), WithRateLimit(rate.Every(time.Hour), 1))
			Expect(err).NotTo(HaveOccurred())
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `[]`))

			_, err = limited.ListExpenses(ctx, "tok", "user-1", expense.Filter{})
			Expect(err).NotTo(HaveOccurred())

			short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			_, err = limited.ListExpenses(short, "tok", "user-1", expense.Filter{})
			Expect(err).To(MatchError(ContainSubstring("rate limiter")))
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})
})
