package webserver

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/doguser/NickWatchBot/announcement"
	"github.com/doguser/NickWatchBot/errorhandler"
	"github.com/doguser/NickWatchBot/models"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	snowflakePattern = regexp.MustCompile(`^\d{17,20}$`)
	registerOnce     sync.Once
)

// registerValidators adds the domain tags to gin's binding validator.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
			_, ok := models.ParseCategory(fl.Field().String())
			return ok
		})
		_ = v.RegisterValidation("platform", func(fl validator.FieldLevel) bool {
			_, ok := models.ParsePlatform(fl.Field().String())
			return ok
		})
		_ = v.RegisterValidation("username_status", func(fl validator.FieldLevel) bool {
			_, ok := models.ParseStatus(fl.Field().String())
			return ok
		})
		_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
			return announcement.ParseDate(fl.Field().String()) != nil
		})
		_ = v.RegisterValidation("snowflake", func(fl validator.FieldLevel) bool {
			return snowflakePattern.MatchString(fl.Field().String())
		})
	})
}

// bindingError turns a gin binding failure into a validation error with a
// message naming the first offending field.
func bindingError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return errorhandler.NewValidationError(errors.New("invalid request body"), "request")
	}

	first := validationErrors[0]
	field := strings.ToLower(first.Field())
	var msg string
	switch first.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", field)
	case "category":
		msg = fmt.Sprintf("%s must be one of %v", field, models.Categories)
	case "platform":
		msg = fmt.Sprintf("%s must be one of %v", field, models.Platforms)
	case "username_status":
		msg = fmt.Sprintf("%s must be one of %v", field, models.Statuses)
	case "isodate":
		msg = fmt.Sprintf("%s must be a YYYY-MM-DD date", field)
	case "snowflake":
		msg = fmt.Sprintf("%s must be a Discord id", field)
	default:
		msg = fmt.Sprintf("invalid %s", field)
	}
	return errorhandler.NewValidationError(errors.New(msg), field)
}
