package notify

import (
	"context"
	"errors"
	"fmt"

	"zapisnik/internal/model"
)

// BookingLoader fetches the booking an event refers to.
type BookingLoader interface {
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
}

// ChatResolver maps an event recipient to a chat id. Zero means the recipient
// has no chat bound and the message is skipped.
type ChatResolver interface {
	ChatFor(ctx context.Context, role Role, b *model.Booking) (int64, error)
}

// NameResolver returns display names for message texts.
type NameResolver interface {
	MasterName(ctx context.Context, id int64) (string, error)
	ClientName(ctx context.Context, id int64) (string, error)
}

// Composer renders events into human-readable messages.
type Composer struct {
	bookings BookingLoader
	chats    ChatResolver
	names    NameResolver
}

// NewComposer creates a message composer.
func NewComposer(bookings BookingLoader, chats ChatResolver, names NameResolver) *Composer {
	return &Composer{bookings: bookings, chats: chats, names: names}
}

// Format implements Formatter.
func (c *Composer) Format(ctx context.Context, ev Event) (Message, bool, error) {
	b, err := c.bookings.GetBooking(ctx, ev.BookingID)
	if errors.Is(err, model.ErrNotFound) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, fmt.Errorf("load booking: %w", err)
	}

	chatID, err := c.chats.ChatFor(ctx, ev.Recipient, b)
	if err != nil {
		return Message{}, false, fmt.Errorf("resolve chat: %w", err)
	}
	if chatID == 0 {
		return Message{}, false, nil
	}

	text, err := c.text(ctx, ev, b)
	if err != nil {
		return Message{}, false, err
	}
	if text == "" {
		return Message{}, false, nil
	}
	return Message{ChatID: chatID, Text: text}, true, nil
}

func (c *Composer) text(ctx context.Context, ev Event, b *model.Booking) (string, error) {
	when := b.StartsAt.Format("02.01.2006 15:04")
	services := ""
	for i, it := range b.Items {
		if i > 0 {
			services += ", "
		}
		services += it.Name
	}

	switch ev.Recipient {
	case RoleClient:
		master, err := c.names.MasterName(ctx, b.MasterID)
		if err != nil {
			master = ""
		}
		return clientText(ev.Kind, when, services, master), nil
	case RoleMaster:
		client, err := c.names.ClientName(ctx, b.ClientID)
		if err != nil {
			client = b.ClientName
		}
		return masterText(ev.Kind, when, services, client), nil
	}
	return "", nil
}

func clientText(kind Kind, when, services, master string) string {
	switch kind {
	case KindBookingReserved:
		return fmt.Sprintf("Слот зарезервирован: %s, %s (мастер %s). Подтвердите запись, иначе резерв истечёт.", services, when, master)
	case KindBookingConfirmed:
		return fmt.Sprintf("Запись подтверждена: %s, %s (мастер %s).", services, when, master)
	case KindPaymentRequested:
		return fmt.Sprintf("Ожидается оплата записи: %s, %s.", services, when)
	case KindAwaitingCash:
		return fmt.Sprintf("Запись принята, оплата на месте: %s, %s.", services, when)
	case KindBookingStarted:
		return fmt.Sprintf("Ваш визит начался: %s.", services)
	case KindBookingDone:
		return fmt.Sprintf("Визит завершён: %s. Спасибо, что пришли!", services)
	case KindBookingNoShow:
		return fmt.Sprintf("Вы не пришли на запись %s. Свяжитесь с салоном, чтобы перенести.", when)
	case KindCancelledByMaster:
		return fmt.Sprintf("Мастер отменил вашу запись %s (%s). Приносим извинения.", when, services)
	case KindBookingExpired:
		return fmt.Sprintf("Резерв на %s истёк: запись не была подтверждена вовремя.", when)
	case KindBookingReminder:
		return fmt.Sprintf("Напоминание: завтра у вас запись %s в %s (мастер %s).", services, when, master)
	}
	return ""
}

func masterText(kind Kind, when, services, client string) string {
	switch kind {
	case KindBookingReserved:
		return fmt.Sprintf("Новый резерв: %s, %s — клиент %s.", services, when, client)
	case KindBookingPaid:
		return fmt.Sprintf("Запись оплачена: %s, %s — клиент %s.", services, when, client)
	case KindCancelledByClient:
		return fmt.Sprintf("Клиент %s отменил запись %s (%s).", client, when, services)
	case KindBookingRescheduled:
		return fmt.Sprintf("Клиент %s перенёс запись: %s, новое время %s.", client, services, when)
	case KindDayClearBlocked:
		return fmt.Sprintf("Не удалось закрыть день: остались активные записи (%s, клиент %s).", when, client)
	}
	return ""
}
