package handlers

import (
	"errors"
	"fmt"

	"bookstore/internal/logger"
	"bookstore/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var kindStatus = map[services.ErrorKind]int{
	services.KindNotFound:       fiber.StatusNotFound,
	services.KindBadRequest:     fiber.StatusBadRequest,
	services.KindUnauthorized:   fiber.StatusUnauthorized,
	services.KindForbidden:      fiber.StatusForbidden,
	services.KindConflict:       fiber.StatusConflict,
	services.KindPaymentFailure: fiber.StatusPaymentRequired,
}

// ErrorHandler renders every error returned by a handler or middleware as
// {"detail": message}. Anything that is not a domain or fiber error is logged
// and reported as a bare 500.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var verr *validationError
		if errors.As(err, &verr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"detail": "Validation failed",
				"errors": verr.fields,
			})
		}

		var domainErr *services.Error
		if errors.As(err, &domainErr) {
			return c.Status(kindStatus[domainErr.Kind]).JSON(fiber.Map{"detail": domainErr.Message})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{"detail": fiberErr.Message})
		}

		logger.Error(c.UserContext(), log, "unhandled request error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"detail": "Internal server error"})
	}
}

// validationError is a 400 carrying per-field messages.
type validationError struct {
	fields map[string]string
}

func (e *validationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.fields))
}

var validate = validator.New()

// parseBody parses and validates a request body into dst.
func parseBody(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return services.BadRequest("Invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return services.BadRequest("Invalid request body")
		}
		fields := make(map[string]string, len(verrs))
		for _, e := range verrs {
			fields[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
		}
		return &validationError{fields: fields}
	}
	return nil
}
