package settings

import (
	"errors"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/expense-tracker/internal/apperr"
	"github.com/zombor/expense-tracker/internal/store"
)

func TestSettings(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Settings Suite")
}

var _ = Describe("Settings", func() {
	var kv *store.BoltStore

	BeforeEach(func() {
		var err error
		kv, err = store.Open(filepath.Join(GinkgoT().TempDir(), "settings.db"), "")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		kv.Close()
	})

	It("should return defaults when nothing was saved", func() {
		s, err := Load(kv)
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(Equal(Settings{NotificationsEnabled: true, Language: "en"}))
	})

	It("should persist the notification toggle", func() {
		_, err := SetNotificationsEnabled(kv, false)
		Expect(err).NotTo(HaveOccurred())

		s, err := Load(kv)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.NotificationsEnabled).To(BeFalse())
		Expect(s.Language).To(Equal("en"))
	})

	It("should store the closest supported language", func() {
		s, err := SetLanguage(kv, "de-AT")
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Language).To(Equal("de"))

		loaded, err := Load(kv)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Language).To(Equal("de"))
	})

	It("should accept the legacy jp code", func() {
		s, err := SetLanguage(kv, "jp")
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Language).To(Equal("ja"))
	})

	It("should reject a malformed tag and keep the old value", func() {
		_, err := SetLanguage(kv, "not a language!")
		Expect(errors.Is(err, apperr.ErrValidation)).To(BeTrue())

		s, err := Load(kv)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Language).To(Equal("en"))
	})

	It("should keep settings independent of each other", func() {
		_, err := SetLanguage(kv, "fr")
		Expect(err).NotTo(HaveOccurred())
		_, err = SetNotificationsEnabled(kv, false)
		Expect(err).NotTo(HaveOccurred())

		s, err := Load(kv)
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(Equal(Settings{NotificationsEnabled: false, Language: "fr"}))
	})
})
