// Package model содержит доменные сущности сервиса KelevKef.
package model

import (
	"errors"
	"time"

	"github.com/kelevkef/kelevkef-system/internal/authz"
)

// OrderStatus описывает статус заказа на выгул или передержку.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusDeclined  OrderStatus = "declined"
)

// ErrInvalidTransition возвращается при недопустимой смене статуса заказа.
var ErrInvalidTransition = errors.New("invalid order status transition")

// Valid сообщает, является ли значение одним из известных статусов заказа.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusDeclined:
		return true
	}
	return false
}

// Terminal сообщает, является ли статус конечным.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusConfirmed || s == OrderStatusDeclined
}

// Transition проверяет допустимость перехода статуса. Разрешены только
// переходы pending → confirmed и pending → declined.
func (s OrderStatus) Transition(to OrderStatus) error {
	if s != OrderStatusPending {
		return ErrInvalidTransition
	}
	if !to.Terminal() {
		return ErrInvalidTransition
	}
	return nil
}

// Order описывает заказ между клиентом и исполнителем.
type Order struct {
	ID          string
	ClientID    string
	ExecutorID  string
	PetID       *string
	ServiceType string
	Date        time.Time
	Address     string
	Details     string
	Status      OrderStatus
	PriceCents  *int64
	Rating      *int
	InsertedAt  time.Time
}

// Ownership возвращает отношения владения заказом для проверки авторизации.
func (o *Order) Ownership() authz.Ownership {
	return authz.Ownership{
		ClientID:   o.ClientID,
		ExecutorID: o.ExecutorID,
	}
}

// Price возвращает цену заказа в денежных единицах, 0 для заказа без цены.
func (o *Order) Price() float64 {
	if o.PriceCents == nil {
		return 0
	}
	return float64(*o.PriceCents) / 100
}

// Pet описывает питомца клиента.
type Pet struct {
	ID          string
	OwnerID     string
	PetType     string
	Name        string
	Age         int
	Description string
	AvatarURL   *string
	InsertedAt  time.Time
}

// Ownership возвращает отношения владения питомцем.
func (p *Pet) Ownership() authz.Ownership {
	return authz.Ownership{OwnerID: p.OwnerID}
}

// Profile описывает публичную анкету пользователя маркетплейса.
// Ключом служит идентификатор пользователя платформы, одна запись на аккаунт.
type Profile struct {
	UserID            string
	FullName          string
	City              string
	About             string
	PricePerWalkCents *int64
	Latitude          *float64
	Longitude         *float64
	AvatarURL         *string
	Rating            *float64
	UpdatedAt         time.Time
}

// OrderMessage описывает одно сообщение в чате заказа.
type OrderMessage struct {
	ID         string
	OrderID    string
	SenderID   string
	Message    string
	InsertedAt time.Time
}
