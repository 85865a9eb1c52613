package http

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"chessmatch/internal/server/core"
)

var validate = validator.New()

var sessionIDPattern = regexp.MustCompile(`^[0-9A-Z]{6}$`)

// validationMiddleware parses and validates JSON bodies by route
func validationMiddleware(c *fiber.Ctx) error {
	method := c.Method()
	if method != fiber.MethodPost {
		return c.Next()
	}

	path := c.Path()
	var requestType any
	optionalBody := false

	switch {
	case strings.HasSuffix(path, "/join"):
		requestType = &core.JoinRequest{}
		optionalBody = true
	case strings.HasSuffix(path, "/moves"):
		requestType = &core.MoveRequest{}
	default:
		return c.Next()
	}

	if len(c.Body()) > 0 || !optionalBody {
		if err := c.BodyParser(requestType); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
				Error:   "invalid request body",
				Code:    core.ErrCodeInvalidRequest,
				Details: err.Error(),
			})
		}
	}

	if errs := validate.Struct(requestType); errs != nil {
		return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error:   "validation failed",
			Code:    core.ErrCodeInvalidRequest,
			Details: describeValidation(errs),
		})
	}

	c.Locals("validatedBody", requestType)
	c.Locals("validated", true)
	return c.Next()
}

func describeValidation(errs error) string {
	var verrs validator.ValidationErrors
	if !errors.As(errs, &verrs) {
		return errs.Error()
	}

	var details strings.Builder
	for _, err := range verrs {
		if details.Len() > 0 {
			details.WriteString("; ")
		}
		unit := ""
		if err.Type().Kind() == reflect.String {
			unit = " characters"
		}
		switch err.Tag() {
		case "required":
			details.WriteString(fmt.Sprintf("%s is required", err.Field()))
		case "min":
			details.WriteString(fmt.Sprintf("%s must be at least %s%s", err.Field(), err.Param(), unit))
		case "max":
			details.WriteString(fmt.Sprintf("%s must be at most %s%s", err.Field(), err.Param(), unit))
		default:
			details.WriteString(fmt.Sprintf("%s failed %s validation", err.Field(), err.Tag()))
		}
	}
	return details.String()
}

func isValidSessionID(s string) bool {
	return sessionIDPattern.MatchString(s)
}
