// Package authz содержит единую проверку прав доступа к ресурсам сервиса.
package authz

import "errors"

// ErrForbidden возвращается, когда пользователь аутентифицирован, но не имеет
// требуемого отношения к ресурсу.
var ErrForbidden = errors.New("forbidden")

// Relation описывает требуемое отношение пользователя к ресурсу.
type Relation string

const (
	// RelationClient — пользователь должен быть клиентом заказа.
	RelationClient Relation = "client"
	// RelationExecutor — пользователь должен быть исполнителем заказа.
	RelationExecutor Relation = "executor"
	// RelationParticipant — пользователь должен быть участником заказа
	// (клиентом или исполнителем).
	RelationParticipant Relation = "participant"
	// RelationOwner — пользователь должен быть владельцем ресурса.
	RelationOwner Relation = "owner"
)

// Ownership содержит идентификаторы владения ресурса. Для заказа заполняются
// ClientID и ExecutorID, для ресурсов с единственным владельцем — OwnerID.
type Ownership struct {
	ClientID   string
	ExecutorID string
	OwnerID    string
}

// Check проверяет, состоит ли actor в отношении rel к ресурсу с владением own.
// Возвращает ErrForbidden при отсутствии требуемого отношения.
func Check(actor string, own Ownership, rel Relation) error {
	if actor == "" {
		return ErrForbidden
	}

	switch rel {
	case RelationClient:
		if own.ClientID == actor {
			return nil
		}
	case RelationExecutor:
		if own.ExecutorID == actor {
			return nil
		}
	case RelationParticipant:
		if own.ClientID == actor || own.ExecutorID == actor {
			return nil
		}
	case RelationOwner:
		if own.OwnerID == actor {
			return nil
		}
	}

	return ErrForbidden
}
