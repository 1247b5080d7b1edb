package model

import (
	"errors"
	"testing"
)

func TestOrderStatusTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{
			name:    "pending to confirmed",
			from:    OrderStatusPending,
			to:      OrderStatusConfirmed,
			allowed: true,
		},
		{
			name:    "pending to declined",
			from:    OrderStatusPending,
			to:      OrderStatusDeclined,
			allowed: true,
		},
		{
			name:    "pending to pending",
			from:    OrderStatusPending,
			to:      OrderStatusPending,
			allowed: false,
		},
		{
			name:    "confirmed is terminal",
			from:    OrderStatusConfirmed,
			to:      OrderStatusDeclined,
			allowed: false,
		},
		{
			name:    "declined is terminal",
			from:    OrderStatusDeclined,
			to:      OrderStatusConfirmed,
			allowed: false,
		},
		{
			name:    "confirmed cannot go back to pending",
			from:    OrderStatusConfirmed,
			to:      OrderStatusPending,
			allowed: false,
		},
		{
			name:    "unknown target",
			from:    OrderStatusPending,
			to:      OrderStatus("cancelled"),
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.from.Transition(tt.to)
			if tt.allowed && err != nil {
				t.Fatalf("Transition(%s -> %s) = %v, want nil", tt.from, tt.to, err)
			}
			if !tt.allowed && !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("Transition(%s -> %s) = %v, want ErrInvalidTransition", tt.from, tt.to, err)
			}
		})
	}
}

func TestOrderStatusValid(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusDeclined} {
		if !s.Valid() {
			t.Fatalf("status %q must be valid", s)
		}
	}
	if OrderStatus("accepted").Valid() {
		t.Fatalf("status %q must be invalid", "accepted")
	}
	if OrderStatus("").Valid() {
		t.Fatalf("empty status must be invalid")
	}
}

func TestOrderPrice(t *testing.T) {
	o := &Order{}
	if got := o.Price(); got != 0 {
		t.Fatalf("Price() without price = %v, want 0", got)
	}

	cents := int64(5050)
	o.PriceCents = &cents
	if got := o.Price(); got != 50.5 {
		t.Fatalf("Price() = %v, want 50.5", got)
	}
}

func TestOrderOwnership(t *testing.T) {
	o := &Order{ClientID: "c", ExecutorID: "e"}
	own := o.Ownership()
	if own.ClientID != "c" || own.ExecutorID != "e" || own.OwnerID != "" {
		t.Fatalf("unexpected ownership: %+v", own)
	}

	p := &Pet{OwnerID: "u"}
	if p.Ownership().OwnerID != "u" {
		t.Fatalf("unexpected pet ownership: %+v", p.Ownership())
	}
}
