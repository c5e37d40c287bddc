package validation

import (
	"errors"
	"testing"

	apperrors "github.com/anime-shed/sku-image-audit/internal/errors"
)

func TestValidateImageURL_ValidRefs(t *testing.T) {
	validator := NewURLValidator()

	validURLs := []string{
		"http://example.com/image.jpg",
		"https://cdn11.bigcommerce.com/s-abc/products/1/images/2/a.jpg",
		"HTTPS://Example.com/image.png",
		"s3://catalog-images/sku001/front.jpg",
		"https://account.blob.core.windows.net/images/sku001.jpg",
		"http://192.168.1.1:8080/image.jpg",
	}

	for _, url := range validURLs {
		if err := validator.ValidateImageURL(url); err != nil {
			t.Errorf("Expected valid URL %s to pass validation, got error: %v", url, err)
		}
	}
}

func TestValidateImageURL_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		wantMessage string
	}{
		{"empty", "", "URL cannot be empty"},
		{"whitespace", " \t\n", "URL cannot be empty"},
		{"no scheme", "not-a-url", "URL scheme not allowed"},
		{"ftp scheme", "ftp://example.com/image.jpg", "URL scheme not allowed"},
		{"file scheme", "file:///tmp/image.jpg", "URL scheme not allowed"},
		{"no host", "http://", "URL must have a valid host"},
		{"no host with path", "http:///path", "URL must have a valid host"},
		{"s3 without bucket", "s3:///key.jpg", "URL must have a valid host"},
	}

	validator := NewURLValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateImageURL(tt.url)
			if err == nil {
				t.Fatalf("Expected %q to fail validation", tt.url)
			}

			var appErr *apperrors.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("Expected AppError, got: %T", err)
			}
			if appErr.Message != tt.wantMessage {
				t.Errorf("Expected %q error, got: %s", tt.wantMessage, appErr.Message)
			}
			if appErr.Type != apperrors.ErrorTypeValidation {
				t.Errorf("Expected validation error type, got: %s", appErr.Type)
			}
		})
	}
}

func TestValidateImageURL_RestrictedHosts(t *testing.T) {
	validator := NewURLValidatorWithOptions([]string{"https"}, []string{"example.com", "*.bigcommerce.com"})

	allowed := []string{
		"https://example.com/image.jpg",
		"https://EXAMPLE.com:443/image.jpg",
		"https://cdn11.bigcommerce.com/image.png",
	}
	for _, url := range allowed {
		if err := validator.ValidateImageURL(url); err != nil {
			t.Errorf("Expected allowed host URL '%s' to pass validation, got error: %v", url, err)
		}
	}

	disallowed := []string{
		"https://malicious.com/image.jpg",
		"https://bigcommerce.com.evil.net/image.png",
	}
	for _, url := range disallowed {
		err := validator.ValidateImageURL(url)
		if err == nil {
			t.Errorf("Expected disallowed host URL '%s' to fail validation", url)
			continue
		}
		if appErr, ok := err.(*apperrors.AppError); ok && appErr.Message != "URL host not allowed" {
			t.Errorf("Expected 'URL host not allowed' error, got: %s", appErr.Message)
		}
	}
}

func TestIsSchemeAllowed(t *testing.T) {
	validator := NewURLValidator()

	for _, scheme := range []string{"http", "https", "s3", "HTTP"} {
		if !validator.isSchemeAllowed(scheme) {
			t.Errorf("Expected %s scheme to be allowed", scheme)
		}
	}
	for _, scheme := range []string{"ftp", "file", ""} {
		if validator.isSchemeAllowed(scheme) {
			t.Errorf("Expected %q scheme to be disallowed", scheme)
		}
	}
}
