package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var validate *validator.Validate
var translator ut.Translator

func init() {
	validate = validator.New()
	var ok bool
	translator, ok = ut.New(en.New(), en.New()).GetTranslator("en")
	if !ok {
		panic("config: failed to get 'en' translator")
	}

	if err := en_translations.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(err)
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := validate.RegisterValidation("bytesize", func(fl validator.FieldLevel) bool {
		_, err := humanize.ParseBytes(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(err)
	}

	validate.RegisterStructValidation(validateTransfer, Transfer{})
}

// validateTransfer rejects transfer settings the connection pool cannot
// serve: every concurrently fetched file may hold all of its segments.
func validateTransfer(sl validator.StructLevel) {
	t := sl.Current().Interface().(Transfer)
	if t.FileConcurrency*t.Segments > t.PoolCeiling {
		sl.ReportError(t.PoolCeiling, "pool_ceiling", "PoolCeiling", "poolfit", "")
	}
}

// FieldError is a validation failure of one configuration field.
type FieldError struct {
	Field string
	Err   string
}

// FieldErrors collects every invalid field of a configuration.
type FieldErrors []FieldError

func (fe FieldErrors) Error() string {
	parts := make([]string, len(fe))
	for i, f := range fe {
		parts[i] = f.Field + ": " + f.Err
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// Validate checks cfg against its declared constraints.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrors validator.ValidationErrors
	if !errors.As(err, &verrors) {
		return err
	}

	fields := make(FieldErrors, 0, len(verrors))
	for _, verror := range verrors {
		fields = append(fields, FieldError{
			// drop the leading "Config."
			Field: strings.SplitN(verror.Namespace(), ".", 2)[1],
			Err:   customErrForTag(verror.Tag(), verror),
		})
	}
	return fields
}

func customErrForTag(tag string, verror validator.FieldError) string {
	switch tag {
	case "required":
		return "this field is required"
	case "bytesize":
		return "must be a size such as 10MB or 512KiB"
	case "poolfit":
		return "must be at least file_concurrency * segments"
	case "hostname_rfc1123|ip":
		return "must be a host name or IP address"
	default:
		return verror.Translate(translator)
	}
}
