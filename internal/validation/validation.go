// Package validation содержит функции валидации входных данных.
package validation

import (
	"github.com/google/uuid"
)

// IsValidID проверяет, что строка является корректным UUID идентификатора.
func IsValidID(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// IsValidRating проверяет, что оценка заказа лежит в диапазоне от 1 до 5.
func IsValidRating(rating int) bool {
	return rating >= 1 && rating <= 5
}

// IsValidNewStatus проверяет, что запрошенный статус является допустимой целью
// перехода: заказ можно только подтвердить или отклонить.
func IsValidNewStatus(status string) bool {
	return status == "confirmed" || status == "declined"
}
