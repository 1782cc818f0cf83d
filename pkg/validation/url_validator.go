package validation

import (
	"net/url"
	"strings"

	apperrors "github.com/anime-shed/fleet-schedule-extractor/internal/errors"
)

// azureBlobSuffix is the host suffix of Azure blob endpoints.
const azureBlobSuffix = ".blob.core.windows.net"

// URLValidator checks schedule photo URLs before they are downloaded.
type URLValidator struct {
	schemes map[string]bool
	// hosts holds exact host names; entries starting with a dot match any
	// subdomain. Empty allows every host.
	hosts []string
}

// NewURLValidator accepts http and https URLs on any host.
func NewURLValidator() *URLValidator {
	return NewURLValidatorWithOptions([]string{"http", "https"}, nil)
}

// NewURLValidatorWithOptions restricts schemes and hosts. A host like
// ".example.com" allows every subdomain of example.com.
func NewURLValidatorWithOptions(schemes []string, hosts []string) *URLValidator {
	v := &URLValidator{schemes: make(map[string]bool, len(schemes))}
	for _, s := range schemes {
		v.schemes[strings.ToLower(s)] = true
	}
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			v.hosts = append(v.hosts, h)
		}
	}
	return v
}

// ValidateImageURL validates a schedule photo URL before it is fetched
func (v *URLValidator) ValidateImageURL(imageURL string) error {
	_, err := v.parse(imageURL)
	return err
}

// ValidateBlobURL validates an Azure blob URL of the form
// https://<account>.blob.core.windows.net/<container>/<blob>.
func (v *URLValidator) ValidateBlobURL(blobURL string) error {
	u, err := v.parse(blobURL)
	if err != nil {
		return err
	}
	if u.Scheme != "https" {
		return apperrors.NewValidationError("Blob URL must use https", nil)
	}
	if !strings.HasSuffix(strings.ToLower(u.Hostname()), azureBlobSuffix) {
		return apperrors.NewValidationError("URL is not an Azure blob endpoint", nil)
	}
	container, blob, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if container == "" || blob == "" {
		return apperrors.NewValidationError("Blob URL must name a container and a blob", nil)
	}
	return nil
}

func (v *URLValidator) parse(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, apperrors.NewValidationError("URL cannot be empty", nil)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, apperrors.NewValidationError("Invalid URL format", err)
	}
	if !v.schemes[strings.ToLower(u.Scheme)] {
		return nil, apperrors.NewValidationError("URL scheme not allowed", nil)
	}
	if u.Hostname() == "" {
		return nil, apperrors.NewValidationError("URL must have a valid host", nil)
	}
	if u.User != nil {
		return nil, apperrors.NewValidationError("URL must not carry credentials", nil)
	}
	if !v.hostAllowed(u.Hostname()) {
		return nil, apperrors.NewValidationError("URL host not allowed", nil)
	}
	return u, nil
}

func (v *URLValidator) hostAllowed(host string) bool {
	if len(v.hosts) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, allowed := range v.hosts {
		if strings.HasPrefix(allowed, ".") {
			if strings.HasSuffix(host, allowed) {
				return true
			}
			continue
		}
		if host == allowed {
			return true
		}
	}
	return false
}
