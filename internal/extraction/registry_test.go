package extraction

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockProvider is a mock implementation of Provider
type mockProvider struct {
	name     string
	doc      Document
	err      error
	calls    int
	lastMime string
	closed   bool
}

func (m *mockProvider) ExtractReceipt(ctx context.Context, image []byte, mimeType string) (Document, error) {
	m.calls++
	m.lastMime = mimeType
	if m.err != nil {
		return nil, m.err
	}
	return m.doc, nil
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Close() error {
	m.closed = true
	return nil
}

var _ = Describe("Registry", func() {
	var (
		registry *Registry
		gemini   *mockProvider
		openai   *mockProvider
	)

	BeforeEach(func() {
		gemini = &mockProvider{name: "gemini"}
		openai = &mockProvider{name: "openai"}
		registry = NewRegistry(RegistryConfig{Default: "gemini"})
		registry.Register(gemini)
		registry.Register(openai)
	})

	Describe("Resolve", func() {
		When("no name is given", func() {
			It("uses the configured default", func() {
				p, err := registry.Resolve("")
				Expect(err).NotTo(HaveOccurred())
				Expect(p).To(BeIdenticalTo(gemini))
			})
		})

		When("a registered name other than the default is given", func() {
			It("uses that provider", func() {
				p, err := registry.Resolve("openai")
				Expect(err).NotTo(HaveOccurred())
				Expect(p).To(BeIdenticalTo(openai))
			})
		})

		When("an unregistered name is given", func() {
			It("fails with NotFoundError naming the requested key", func() {
				_, err := registry.Resolve("foo")
				var notFound *NotFoundError
				Expect(errors.As(err, &notFound)).To(BeTrue())
				Expect(notFound.Provider).To(Equal("foo"))
				Expect(err.Error()).To(ContainSubstring("foo"))
			})
		})

		When("names differ only by case", func() {
			It("does not match case-insensitively", func() {
				_, err := registry.Resolve("Gemini")
				var notFound *NotFoundError
				Expect(errors.As(err, &notFound)).To(BeTrue())
			})
		})
	})

	Describe("Names", func() {
		It("returns the registered names sorted", func() {
			Expect(registry.Names()).To(Equal([]string{"gemini", "openai"}))
		})
	})

	Describe("Default", func() {
		It("returns the configured default name", func() {
			Expect(registry.Default()).To(Equal("gemini"))
		})
	})

	Describe("Close", func() {
		It("closes every registered provider", func() {
			Expect(registry.Close()).To(Succeed())
			Expect(gemini.closed).To(BeTrue())
			Expect(openai.closed).To(BeTrue())
		})
	})
})
