package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

type addLineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int32  `json:"quantity" validate:"required,min=1"`
}

type setQuantityRequest struct {
	Quantity int32 `json:"quantity" validate:"min=0"`
}

type discountRequest struct {
	Kind        string `json:"kind" validate:"required,oneof=percentage amount"`
	PercentBP   int64  `json:"percent_bp" validate:"min=0,max=10000"`
	AmountMinor int64  `json:"amount_minor" validate:"min=0"`
}

func (r discountRequest) toDomain() (domain.Discount, error) {
	if domain.DiscountKind(r.Kind) == domain.DiscountPercentage {
		return domain.NewPercentageDiscount(r.PercentBP)
	}
	return domain.NewAmountDiscount(r.AmountMinor)
}

type selectCustomerRequest struct {
	// Пустой идентификатор означает покупателя без карточки.
	CustomerID string `json:"customer_id"`
}

type setTenderRequest struct {
	Tender string `json:"tender" validate:"required,oneof=cash card deferred"`
}

type checkoutRequest struct {
	TenderedMinor int64 `json:"tendered_minor" validate:"min=0"`
}

func newValidator() *validatorv10.Validate {
	return validatorv10.New()
}

// bindAndValidate разбирает JSON-тело в out и прогоняет валидацию.
// При ошибке пишет ответ 400 и возвращает ошибку, чтобы handler
// завершился сразу.
func bindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_request_body",
			"msg":   err.Error(),
		})
		return err
	}

	if err := v.Struct(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation_failed",
			"fields": validationErrorsToMap(err),
		})
		return err
	}
	return nil
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	if ve, ok := err.(validatorv10.ValidationErrors); ok {
		for _, fe := range ve {
			out[fe.StructNamespace()] = fe.Error()
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}
