package receipt

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		dir     string
		storage *LocalStorage
	)

	BeforeEach(func() {
		dir = filepath.Join(GinkgoT().TempDir(), "receipts")
		var err error
		storage, err = NewLocalStorage(dir)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should create a private staging directory", func() {
		info, err := os.Stat(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
		Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o700)))
	})

	Describe("staging a receipt", func() {
		var ref string

		BeforeEach(func() {
			name, err := storage.Save("1710064800_lunch.jpg", []byte("jpeg bytes"))
			Expect(err).NotTo(HaveOccurred())
			ref = LocalRefPrefix + name
		})

		It("should be readable through its local reference", func() {
			data, err := storage.Get(strings.TrimPrefix(ref, LocalRefPrefix))
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("jpeg bytes")))
		})

		It("should keep the file private to the user", func() {
			info, err := os.Stat(filepath.Join(dir, "1710064800_lunch.jpg"))
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
		})

		It("should replace an earlier copy with the same name", func() {
			_, err := storage.Save("1710064800_lunch.jpg", []byte("rescanned"))
			Expect(err).NotTo(HaveOccurred())

			data, err := storage.Get("1710064800_lunch.jpg")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("rescanned"))
		})

		It("should be gone once uploaded and discarded", func() {
			Expect(storage.Delete("1710064800_lunch.jpg")).To(Succeed())

			names, err := storage.List()
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(BeEmpty())

			_, err = storage.Get("1710064800_lunch.jpg")
			Expect(err).To(MatchError(ContainSubstring("reading file")))
		})
	})

	Describe("List", func() {
		It("should list waiting receipts in name order and skip directories", func() {
			_, err := storage.Save("1710151200_taxi.png", []byte("b"))
			Expect(err).NotTo(HaveOccurred())
			_, err = storage.Save("1710064800_hotel.pdf", []byte("a"))
			Expect(err).NotTo(HaveOccurred())
			Expect(os.Mkdir(filepath.Join(dir, "scratch"), 0o700)).To(Succeed())

			names, err := storage.List()
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(Equal([]string{"1710064800_hotel.pdf", "1710151200_taxi.png"}))
		})

		It("should fail when the staging directory was removed", func() {
			Expect(os.RemoveAll(dir)).To(Succeed())
			_, err := storage.List()
			Expect(err).To(MatchError(ContainSubstring("reading storage directory")))
		})
	})

	It("should report a receipt that was never staged", func() {
		Expect(storage.Delete("missing.jpg")).To(MatchError(ContainSubstring("deleting file")))
	})

	DescribeTable("refuses names outside the staging directory",
		func(name string) {
			_, err := storage.Save(name, []byte("x"))
			Expect(err).To(MatchError(ContainSubstring("invalid file name")))
			_, err = storage.Get(name)
			Expect(err).To(MatchError(ContainSubstring("invalid file name")))
			Expect(storage.Delete(name)).To(MatchError(ContainSubstring("invalid file name")))
		},
		Entry("parent traversal", "../escape.jpg"),
		Entry("nested path", "a/b.jpg"),
		Entry("current directory", "."),
		Entry("parent directory", ".."),
		Entry("empty name", ""),
	)

	It("should not write outside the staging directory", func() {
		_, err := storage.Save("../escape.jpg", []byte("x"))
		Expect(err).To(HaveOccurred())
		Expect(filepath.Join(filepath.Dir(dir), "escape.jpg")).NotTo(BeAnExistingFile())
	})
})
