package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/zar/internal/models"
)

const telegramAPIBaseURL = "https://api.telegram.org"

// TelegramService handles sending notifications to Telegram.
type TelegramService struct {
	botToken    string
	adminChatID string
	currency    string
	apiBaseURL  string
	client      *http.Client
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID, currency string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		currency:    currency,
		apiBaseURL:  telegramAPIBaseURL,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		log.Println("[Telegram] Bot token not configured")
		return nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBaseURL, s.botToken)

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("[Telegram] Failed to send message: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Telegram] Unexpected status: %d", resp.StatusCode)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if s.adminChatID == "" {
		log.Println("[Telegram] Admin chat ID not configured")
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, text)
}

// FormatPrice formats an amount with thousand separators, two decimals and
// the currency code.
func FormatPrice(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = "USD"
	}

	fixed := amount.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var result strings.Builder
	if amount.IsNegative() {
		result.WriteString("-")
	}
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}

	return result.String() + "." + frac + " " + currency
}

// NotifyNewOrder sends notification about new order to admin chat.
func (s *TelegramService) NotifyNewOrder(ctx context.Context, order *models.Order) error {
	if s.adminChatID == "" {
		return nil
	}

	var itemsList strings.Builder
	for i, item := range order.Items {
		name := item.ProductName
		if name == "" {
			name = fmt.Sprintf("Product #%d", item.ProductID)
		}
		lineTotal := item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		fmt.Fprintf(&itemsList, "%d. <b>%s</b>\n   %d x %s = %s\n",
			i+1,
			html.EscapeString(name),
			item.Quantity,
			FormatPrice(item.Price, s.currency),
			FormatPrice(lineTotal, s.currency),
		)
	}

	zone := ""
	if order.DeliveryZone != nil {
		zone = order.DeliveryZone.Name
	}
	slot := ""
	if order.DeliverySlot != nil {
		slot = order.DeliverySlot.Label
	}

	message := fmt.Sprintf(`<b>🛒 NEW ORDER</b>
<b>📋 Tracking:</b> %s
<b>👤 Customer:</b> %s
<b>📞 Phone:</b> %s
<b>📍 Address:</b> %s
<b>🚚 Delivery:</b> %s %s
<b>📦 Items:</b>
%s
<b>Subtotal:</b> %s
<b>Delivery fee:</b> %s
<b>💰 Total:</b> %s
━━━━━━━━━━━━━━━━━━`,
		order.TrackingCode,
		html.EscapeString(order.CustomerName),
		html.EscapeString(order.CustomerPhone),
		html.EscapeString(order.CustomerAddress),
		html.EscapeString(zone),
		html.EscapeString(slot),
		itemsList.String(),
		FormatPrice(order.Subtotal, s.currency),
		FormatPrice(order.DeliveryFee, s.currency),
		FormatPrice(order.Total, s.currency),
	)

	return s.SendToAdmin(ctx, strings.TrimSpace(message))
}

// NotifyStatusChange tells the admin chat that an order moved between statuses.
func (s *TelegramService) NotifyStatusChange(ctx context.Context, order *models.Order, previous models.OrderStatus) error {
	if s.adminChatID == "" {
		return nil
	}

	message := fmt.Sprintf(`<b>🔄 ORDER STATUS</b>
<b>📋 Tracking:</b> %s
<b>📍 Status:</b> %s → %s
<b>💰 Total:</b> %s`,
		order.TrackingCode,
		previous,
		order.Status,
		FormatPrice(order.Total, s.currency),
	)

	return s.SendToAdmin(ctx, message)
}
