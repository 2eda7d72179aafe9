package receipt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/receiptwise/receiptwise/internal/extraction"
)

// multipartUpload builds a multipart body with a file part and an optional
// provider field.
func multipartUpload(filename, contentType string, data []byte, provider string) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	Expect(err).NotTo(HaveOccurred())

	if provider != "" {
		Expect(writer.WriteField("provider", provider)).To(Succeed())
	}
	Expect(writer.Close()).To(Succeed())

	return body, writer.FormDataContentType()
}

func decodeBody(resp *http.Response) map[string]any {
	defer resp.Body.Close()
	var decoded map[string]any
	Expect(json.NewDecoder(resp.Body).Decode(&decoded)).To(Succeed())
	return decoded
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		gemini      *mockProvider
		openai      *mockProvider
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(service, auth, "", http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		gemini = &mockProvider{name: "gemini"}
		openai = &mockProvider{name: "openai"}
		gemini.doc = extractionDoc(`{
			"vendorName": "Cafe",
			"date": "2024-01-15",
			"currency": "USD",
			"items": [
				{"name": "Coffee", "cost": 4.50},
				{"name": "Muffin", "cost": 3.50}
			],
			"gst": 0.80,
			"total": 8.80
		}`)
		openai.doc = gemini.doc

		registry := extraction.NewRegistry(extraction.RegistryConfig{Default: "gemini"})
		registry.Register(gemini)
		registry.Register(openai)
		service = NewServiceWithDeps(
			db, storage, extraction.NewExtractor(registry), EditPolicyReject,
			&fixedIDGenerator{id: "receipt-1"},
			&fixedTimeSource{now: time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC)},
		)
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("POST /api/receipts", func() {
		It("creates a receipt from a png upload", func() {
			body, contentType := multipartUpload("receipt.png", "image/png", []byte("png-bytes"), "")
			resp, err := http.Post(ghttpServer.URL()+"/api/receipts", contentType, body)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			decoded := decodeBody(resp)
			Expect(decoded["id"]).To(Equal("receipt-1"))
			Expect(decoded["vendorName"]).To(Equal("Cafe"))
			Expect(decoded["isSumValid"]).To(BeTrue())
		})

		It("routes to the requested provider", func() {
			body, contentType := multipartUpload("receipt.jpg", "image/jpeg", []byte("jpg-bytes"), "openai")
			resp, err := http.Post(ghttpServer.URL()+"/api/receipts", contentType, body)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			resp.Body.Close()

			Expect(openai.calls).To(Equal(1))
			Expect(gemini.calls).To(BeZero())
		})

		It("falls back to the filename extension when the part has no content type", func() {
			body, contentType := multipartUpload("receipt.jpeg", "", []byte("jpg-bytes"), "")
			resp, err := http.Post(ghttpServer.URL()+"/api/receipts", contentType, body)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			resp.Body.Close()
		})

		When("the file type is not an accepted image", func() {
			It("rejects before any provider call", func() {
				body, contentType := multipartUpload("receipt.pdf", "application/pdf", []byte("%PDF"), "")
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()

				Expect(gemini.calls).To(BeZero())
				Expect(storage.stored).To(BeEmpty())
			})
		})

		When("no file is attached", func() {
			It("returns bad request", func() {
				body := &bytes.Buffer{}
				writer := multipart.NewWriter(body)
				Expect(writer.WriteField("provider", "gemini")).To(Succeed())
				Expect(writer.Close()).To(Succeed())

				resp, err := http.Post(ghttpServer.URL()+"/api/receipts", writer.FormDataContentType(), body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		When("an unknown provider is requested", func() {
			It("returns bad request naming the provider", func() {
				body, contentType := multipartUpload("receipt.png", "image/png", []byte("png-bytes"), "foo")
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				decoded := decodeBody(resp)
				Expect(decoded["error"]).To(ContainSubstring("foo"))
			})
		})

		When("the provider is not configured", func() {
			It("returns service unavailable", func() {
				gemini.err = &extraction.NotConfiguredError{Provider: "gemini"}

				body, contentType := multipartUpload("receipt.png", "image/png", []byte("png-bytes"), "")
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
				resp.Body.Close()
			})
		})

		When("the provider response is unparsable", func() {
			It("returns bad gateway without echoing the raw text", func() {
				gemini.err = &extraction.UnparsableError{Provider: "gemini", Raw: "secret raw model text"}

				body, contentType := multipartUpload("receipt.png", "image/png", []byte("png-bytes"), "")
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))

				raw, readErr := io.ReadAll(resp.Body)
				resp.Body.Close()
				Expect(readErr).NotTo(HaveOccurred())
				Expect(string(raw)).NotTo(ContainSubstring("secret raw model text"))
			})
		})
	})

	Describe("GET /api/receipts/{id}", func() {
		When("the receipt exists", func() {
			BeforeEach(func() {
				Expect(db.SaveReceipt(&Receipt{ID: "abc", VendorName: str("Cafe"), Items: []extraction.Item{}})).To(Succeed())
			})

			It("returns it", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts/abc")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				decoded := decodeBody(resp)
				Expect(decoded["vendorName"]).To(Equal("Cafe"))
			})
		})

		When("the receipt does not exist", func() {
			It("returns not found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts/missing")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})
	})

	Describe("PUT /api/receipts/{id}", func() {
		BeforeEach(func() {
			Expect(db.SaveReceipt(&Receipt{
				ID:         "abc",
				VendorName: str("Cafe"),
				Items:      []extraction.Item{{Name: "Coffee", Cost: 4.50}},
				Total:      f(4.50),
				IsSumValid: true,
			})).To(Succeed())
		})

		put := func(body string) *http.Response {
			req, err := http.NewRequest(http.MethodPut, ghttpServer.URL()+"/api/receipts/abc", strings.NewReader(body))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		When("the corrected sums reconcile", func() {
			It("persists and returns the updated record", func() {
				resp := put(`{
					"vendorName": "Cafe Deluxe",
					"date": "2024-01-15",
					"currency": "USD",
					"items": [{"name": "Coffee", "cost": 4.50}, {"name": "Muffin", "cost": 3.50}],
					"gst": 0.80,
					"total": 8.80
				}`)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				decoded := decodeBody(resp)
				Expect(decoded["vendorName"]).To(Equal("Cafe Deluxe"))
				Expect(decoded["isSumValid"]).To(BeTrue())
			})
		})

		When("the corrected sums do not reconcile", func() {
			It("rejects with the discrepancy and persists nothing", func() {
				resp := put(`{
					"vendorName": "Cafe",
					"items": [{"name": "Thing", "cost": 10.00}],
					"gst": 1.00,
					"total": 12.00
				}`)
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))

				decoded := decodeBody(resp)
				Expect(decoded["computedSum"]).To(Equal(11.00))
				Expect(decoded["statedTotal"]).To(Equal(12.00))

				saved, err := db.GetReceipt("abc")
				Expect(err).NotTo(HaveOccurred())
				Expect(*saved.Total).To(Equal(4.50))
				Expect(saved.IsSumValid).To(BeTrue())
			})
		})

		When("the body fails structural validation", func() {
			It("returns bad request listing the violation", func() {
				resp := put(`{
					"items": [{"name": "Coffee", "cost": "4.50"}],
					"total": 4.50
				}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				decoded := decodeBody(resp)
				Expect(decoded["error"]).To(ContainSubstring("items[0].cost"))
			})
		})

		When("the body is not JSON", func() {
			It("returns bad request", func() {
				resp := put(`not json`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		When("the receipt does not exist", func() {
			It("returns not found", func() {
				req, err := http.NewRequest(http.MethodPut, ghttpServer.URL()+"/api/receipts/missing", strings.NewReader(`{"items": [], "total": null}`))
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Content-Type", "application/json")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})
	})

	Describe("GET /api/providers", func() {
		It("lists registered providers and the default", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/providers")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			decoded := decodeBody(resp)
			Expect(decoded["providers"]).To(Equal([]any{"gemini", "openai"}))
			Expect(decoded["default"]).To(Equal("gemini"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
			setupServer()
		})

		It("rejects requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			resp.Body.Close()
		})

		It("accepts requests with the right credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/receipts", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "secret")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})
	})
})
