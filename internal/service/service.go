// Package service реализует бизнес-логику сервиса KelevKef.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kelevkef/kelevkef-system/internal/authz"
	"github.com/kelevkef/kelevkef-system/internal/model"
)

// ErrRatingNotAllowed возвращается при попытке оценить неподтверждённый заказ.
var ErrRatingNotAllowed = errors.New("rating allowed only for confirmed orders")

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateOrder(ctx context.Context, o model.Order) (*model.Order, error)
	GetOrderByID(ctx context.Context, id string) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) (*model.Order, error)
	UpdateOrderRating(ctx context.Context, id string, rating int) (*model.Order, error)
	ListOrdersByClient(ctx context.Context, clientID string) ([]model.Order, error)
	ListOrdersByExecutor(ctx context.Context, executorID string) ([]model.Order, error)
	ListConfirmedOrdersByClient(ctx context.Context, clientID string) ([]model.Order, error)
	ListConfirmedOrdersByExecutor(ctx context.Context, executorID string) ([]model.Order, error)

	CreateOrderMessage(ctx context.Context, orderID, senderID, message string) (*model.OrderMessage, error)
	ListOrderMessages(ctx context.Context, orderID string) ([]model.OrderMessage, error)

	UpsertProfile(ctx context.Context, p model.Profile) (*model.Profile, error)
	GetProfileByUser(ctx context.Context, userID string) (*model.Profile, error)
	ListProfiles(ctx context.Context) ([]model.Profile, error)

	CreatePet(ctx context.Context, p model.Pet) (*model.Pet, error)
	GetPetByID(ctx context.Context, id string) (*model.Pet, error)
	ListPetsByOwner(ctx context.Context, ownerID string) ([]model.Pet, error)
	UpdatePet(ctx context.Context, p model.Pet) (*model.Pet, error)
	UpdatePetAvatar(ctx context.Context, id, avatarURL string) error
	DeletePet(ctx context.Context, id string) error
}

// AvatarStorage описывает хранилище аватаров платформы, используемое для
// удаления объектов при удалении питомца.
type AvatarStorage interface {
	RemoveAvatar(ctx context.Context, avatarURL string) error
}

// Service содержит бизнес-логику сервиса KelevKef.
type Service struct {
	repo    Repository
	storage AvatarStorage
	logger  *zap.Logger
}

// NewService создаёт новый сервис с указанным репозиторием и хранилищем аватаров.
func NewService(repo Repository, storage AvatarStorage, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		storage: storage,
		logger:  logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// CreateOrderInput содержит поля нового заказа.
type CreateOrderInput struct {
	ExecutorID  string
	PetID       *string
	ServiceType string
	Date        time.Time
	Address     string
	Details     string
	PriceCents  *int64
}

// CreateOrder создаёт заказ от имени клиента. Новый заказ всегда в статусе pending.
func (s *Service) CreateOrder(ctx context.Context, clientID string, in CreateOrderInput) (*model.Order, error) {
	return s.repo.CreateOrder(ctx, model.Order{
		ClientID:    clientID,
		ExecutorID:  in.ExecutorID,
		PetID:       in.PetID,
		ServiceType: in.ServiceType,
		Date:        in.Date,
		Address:     in.Address,
		Details:     in.Details,
		PriceCents:  in.PriceCents,
	})
}

// UpdateOrderStatus переводит заказ в новый статус. Менять статус может только
// исполнитель заказа и только пока заказ в статусе pending.
func (s *Service) UpdateOrderStatus(ctx context.Context, actorID, orderID string, newStatus model.OrderStatus) (*model.Order, error) {
	o, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := authz.Check(actorID, o.Ownership(), authz.RelationExecutor); err != nil {
		return nil, err
	}

	if err := o.Status.Transition(newStatus); err != nil {
		return nil, err
	}

	return s.repo.UpdateOrderStatus(ctx, orderID, newStatus)
}

// UpdateOrderRating сохраняет оценку заказа. Оценивать может только клиент и
// только подтверждённый заказ. Повторная оценка перезаписывает предыдущую.
func (s *Service) UpdateOrderRating(ctx context.Context, actorID, orderID string, rating int) (*model.Order, error) {
	o, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := authz.Check(actorID, o.Ownership(), authz.RelationClient); err != nil {
		return nil, err
	}

	if o.Status != model.OrderStatusConfirmed {
		return nil, ErrRatingNotAllowed
	}

	return s.repo.UpdateOrderRating(ctx, orderID, rating)
}

// ClientOrders возвращает заказы, где пользователь является клиентом.
func (s *Service) ClientOrders(ctx context.Context, clientID string) ([]model.Order, error) {
	return s.repo.ListOrdersByClient(ctx, clientID)
}

// ExecutorOrders возвращает заказы, где пользователь является исполнителем.
func (s *Service) ExecutorOrders(ctx context.Context, executorID string) ([]model.Order, error) {
	return s.repo.ListOrdersByExecutor(ctx, executorID)
}

func sumPrices(orders []model.Order) float64 {
	var total float64
	for i := range orders {
		total += orders[i].Price()
	}
	return total
}

// ClientSpending возвращает сумму по всем подтверждённым заказам клиента и
// сами заказы. Сумма всегда вычисляется на чтении, не хранится.
func (s *Service) ClientSpending(ctx context.Context, clientID string) (float64, []model.Order, error) {
	orders, err := s.repo.ListConfirmedOrdersByClient(ctx, clientID)
	if err != nil {
		return 0, nil, err
	}
	return sumPrices(orders), orders, nil
}

// ExecutorEarnings возвращает сумму по всем подтверждённым заказам исполнителя
// и сами заказы.
func (s *Service) ExecutorEarnings(ctx context.Context, executorID string) (float64, []model.Order, error) {
	orders, err := s.repo.ListConfirmedOrdersByExecutor(ctx, executorID)
	if err != nil {
		return 0, nil, err
	}
	return sumPrices(orders), orders, nil
}

// PostOrderMessage добавляет сообщение в чат заказа от имени участника.
func (s *Service) PostOrderMessage(ctx context.Context, actorID, orderID, message string) (*model.OrderMessage, error) {
	o, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := authz.Check(actorID, o.Ownership(), authz.RelationParticipant); err != nil {
		return nil, err
	}

	return s.repo.CreateOrderMessage(ctx, orderID, actorID, message)
}

// OrderMessages возвращает сообщения чата заказа участнику.
func (s *Service) OrderMessages(ctx context.Context, actorID, orderID string) ([]model.OrderMessage, error) {
	o, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := authz.Check(actorID, o.Ownership(), authz.RelationParticipant); err != nil {
		return nil, err
	}

	return s.repo.ListOrderMessages(ctx, orderID)
}

// ProfileInput содержит поля анкеты пользователя.
type ProfileInput struct {
	FullName          string
	City              string
	About             string
	PricePerWalkCents *int64
	Latitude          *float64
	Longitude         *float64
	AvatarURL         *string
}

// SaveProfile создаёт или обновляет анкету пользователя. Идентичность берётся
// из сессии, анкету другого пользователя изменить нельзя.
func (s *Service) SaveProfile(ctx context.Context, userID string, in ProfileInput) (*model.Profile, error) {
	return s.repo.UpsertProfile(ctx, model.Profile{
		UserID:            userID,
		FullName:          in.FullName,
		City:              in.City,
		About:             in.About,
		PricePerWalkCents: in.PricePerWalkCents,
		Latitude:          in.Latitude,
		Longitude:         in.Longitude,
		AvatarURL:         in.AvatarURL,
	})
}

// Profile возвращает анкету пользователя по идентификатору.
func (s *Service) Profile(ctx context.Context, userID string) (*model.Profile, error) {
	return s.repo.GetProfileByUser(ctx, userID)
}

// ListExecutors возвращает все анкеты для страницы поиска исполнителей.
func (s *Service) ListExecutors(ctx context.Context) ([]model.Profile, error) {
	return s.repo.ListProfiles(ctx)
}

// PetInput содержит поля записи о питомце.
type PetInput struct {
	PetType     string
	Name        string
	Age         int
	Description string
	AvatarURL   *string
}

// CreatePet создаёт запись о питомце. URL аватара сохраняется вторым запросом:
// его сбой логируется и не отменяет создание, запись остаётся без аватара.
func (s *Service) CreatePet(ctx context.Context, ownerID string, in PetInput) (*model.Pet, error) {
	created, err := s.repo.CreatePet(ctx, model.Pet{
		OwnerID:     ownerID,
		PetType:     in.PetType,
		Name:        in.Name,
		Age:         in.Age,
		Description: in.Description,
	})
	if err != nil {
		return nil, err
	}

	if in.AvatarURL != nil && *in.AvatarURL != "" {
		if err := s.repo.UpdatePetAvatar(ctx, created.ID, *in.AvatarURL); err != nil {
			s.logger.Warn("pet avatar url not saved",
				zap.String("petID", created.ID), zap.Error(err))
		} else {
			created.AvatarURL = in.AvatarURL
		}
	}

	return created, nil
}

// Pets возвращает питомцев владельца.
func (s *Service) Pets(ctx context.Context, ownerID string) ([]model.Pet, error) {
	return s.repo.ListPetsByOwner(ctx, ownerID)
}

// UpdatePet обновляет запись о питомце. Изменять питомца может только владелец.
func (s *Service) UpdatePet(ctx context.Context, actorID, petID string, in PetInput) (*model.Pet, error) {
	pet, err := s.repo.GetPetByID(ctx, petID)
	if err != nil {
		return nil, err
	}

	if err := authz.Check(actorID, pet.Ownership(), authz.RelationOwner); err != nil {
		return nil, err
	}

	return s.repo.UpdatePet(ctx, model.Pet{
		ID:          petID,
		PetType:     in.PetType,
		Name:        in.Name,
		Age:         in.Age,
		Description: in.Description,
	})
}

// DeletePet удаляет запись о питомце. Удалять может только владелец.
// Аватар в хранилище платформы удаляется по возможности: сбой логируется
// и не отменяет удаление записи.
func (s *Service) DeletePet(ctx context.Context, actorID, petID string) error {
	pet, err := s.repo.GetPetByID(ctx, petID)
	if err != nil {
		return err
	}

	if err := authz.Check(actorID, pet.Ownership(), authz.RelationOwner); err != nil {
		return err
	}

	if err := s.repo.DeletePet(ctx, petID); err != nil {
		return err
	}

	if pet.AvatarURL != nil && *pet.AvatarURL != "" && s.storage != nil {
		if err := s.storage.RemoveAvatar(ctx, *pet.AvatarURL); err != nil {
			s.logger.Warn("pet avatar object not removed",
				zap.String("petID", petID), zap.Error(err))
		}
	}

	return nil
}
