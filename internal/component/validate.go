package component

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/schaermu/ecm/internal/version"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func descriptorValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ParseDescriptor decodes a descriptor without checking required fields.
// Update checks use it because a descriptor without a version is skipped
// rather than rejected.
func ParseDescriptor(url string, data []byte) (Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, &ManifestFormatError{URL: url, Err: err}
	}
	return d, nil
}

// DecodeDescriptor parses and validates a descriptor document fetched from url
func DecodeDescriptor(url string, data []byte) (Descriptor, error) {
	d, err := ParseDescriptor(url, data)
	if err != nil {
		return Descriptor{}, err
	}
	if err := d.Validate(url); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// Validate checks the required fields of a descriptor. A missing name,
// version or source, or a name that cannot be used as a file name yields a
// ManifestFormatError; a malformed version yields a version.FormatError.
func (d Descriptor) Validate(url string) error {
	if err := descriptorValidator().Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &ManifestFormatError{URL: url, Err: err}
		}

		mfe := &ManifestFormatError{URL: url}
		for _, fe := range verrs {
			field := strings.TrimPrefix(fe.Namespace(), "Descriptor.")
			if fe.Tag() == "required" {
				mfe.Missing = append(mfe.Missing, field)
			} else {
				mfe.Invalid = append(mfe.Invalid, fmt.Sprintf("%s (%s)", field, fe.Tag()))
			}
		}
		return mfe
	}

	if _, err := version.Parse(d.Version); err != nil {
		return fmt.Errorf("descriptor %s: %w", url, err)
	}
	for _, req := range d.Requires {
		if _, err := version.Parse(req.Version); err != nil {
			return fmt.Errorf("descriptor %s: requirement %s: %w", url, req.Manifest, err)
		}
	}
	return nil
}
