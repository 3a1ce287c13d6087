package validation

import (
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/pkg/errors"

	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/rbac"
	"github.com/julis-sh/intranet/shared/security"
)

var (
	once       sync.Once
	setupErr   error
	translator ut.Translator
)

// Setup registers the custom tags and English messages on gin's validator.
// It is safe to call from every service and test.
func Setup() error {
	once.Do(func() {
		setupErr = setup()
	})
	return setupErr
}

func setup() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})

	enT := en.New()
	uni := ut.New(enT, enT)
	translator, _ = uni.GetTranslator("en")
	if err := enTranslations.RegisterDefaultTranslations(v, translator); err != nil {
		return errors.Wrap(err, "failed to register translations")
	}

	custom := []struct {
		tag  string
		fn   validator.Func
		text string
	}{
		{"role", validRole, "{0} must be one of mitarbeiter, vorstand, leitung, admin"},
		{"password", strongPassword, "{0} must have at least 8 characters with upper and lower case letters and a digit"},
		{"clock", validClock, "{0} must be a time of day as HH:MM"},
		{"scenario", validScenario, "{0} is not a known member change scenario"},
	}
	for _, c := range custom {
		if err := v.RegisterValidation(c.tag, c.fn); err != nil {
			return errors.Wrapf(err, "failed to register %s", c.tag)
		}
		if err := v.RegisterTranslation(c.tag, translator, registerTranslator(c.tag, c.text), translateFn); err != nil {
			return errors.Wrapf(err, "failed to register %s translation", c.tag)
		}
	}
	return nil
}

func registerTranslator(tag, msg string) validator.RegisterTranslationsFunc {
	return func(trans ut.Translator) error {
		return trans.Add(tag, msg, false)
	}
}

func translateFn(trans ut.Translator, fe validator.FieldError) string {
	msg, err := trans.T(fe.Tag(), fe.Field())
	if err != nil {
		return fe.Error()
	}
	return msg
}

func validRole(fl validator.FieldLevel) bool {
	return rbac.Role(fl.Field().String()).Valid()
}

func strongPassword(fl validator.FieldLevel) bool {
	return security.CheckPasswordStrength(fl.Field().String()) == ""
}

func validClock(fl validator.FieldLevel) bool {
	_, err := time.Parse("15:04", fl.Field().String())
	return err == nil
}

func validScenario(fl validator.FieldLevel) bool {
	return models.Scenario(fl.Field().String()).Valid()
}

// Message turns a binding error into a single readable line
func Message(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || translator == nil {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Translate(translator))
	}
	return strings.Join(msgs, "; ")
}
