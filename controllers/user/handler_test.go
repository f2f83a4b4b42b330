package user

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bimbridge/config"
	"bimbridge/database"
	"bimbridge/models"
	"bimbridge/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testWallet = "EQCD39VS5jcptHL8vMjEXrzGaRcCVYto7HUn4bpAOg8xqB2N"

func setupApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		TreasuryAddress: "treasury-address",
		IntentExpiry:    24 * time.Hour,
		DailyTonCap:     decimal.NewFromInt(10),
		DailyJettonCap:  decimal.NewFromInt(1000),
	}
	ledger := services.NewLedger(db)
	h := NewHandler(db, cfg, ledger, nil, nil)

	app := fiber.New()
	app.Post("/deposit-intent", h.CreateDepositIntent)
	app.Get("/balance/:wallet", h.GetBalance)
	return app, db
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func postJSON(t *testing.T, app *fiber.App, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, env
}

func TestCreateDepositIntent(t *testing.T) {
	app, db := setupApp(t)

	body := fmt.Sprintf(`{"wallet_address":%q,"amount":"5","asset":"ton"}`, testWallet)
	status, env := postJSON(t, app, "/deposit-intent", body)
	if status != fiber.StatusOK || !env.Success {
		t.Fatalf("status=%d success=%v message=%s", status, env.Success, env.Message)
	}

	var data struct {
		DepositID       uint   `json:"deposit_id"`
		TreasuryAddress string `json:"treasury_address"`
		Comment         string `json:"comment"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.TreasuryAddress != "treasury-address" {
		t.Errorf("treasury_address = %q", data.TreasuryAddress)
	}
	if !strings.HasPrefix(data.Comment, "BIM:DEPOSIT:") {
		t.Errorf("comment = %q, want deposit tag", data.Comment)
	}

	var intent models.DepositIntent
	if err := db.First(&intent, data.DepositID).Error; err != nil {
		t.Fatalf("intent not persisted: %v", err)
	}
	if intent.Status != models.DepositPending {
		t.Errorf("intent status = %s, want pending", intent.Status)
	}

	// user row is created alongside the intent
	var user models.User
	if err := db.Where("wallet_address = ?", testWallet).First(&user).Error; err != nil {
		t.Errorf("user not created: %v", err)
	}
}

func TestCreateDepositIntentValidation(t *testing.T) {
	app, _ := setupApp(t)

	tests := []struct {
		name string
		body string
	}{
		{"bad address", `{"wallet_address":"nope","amount":"5","asset":"ton"}`},
		{"zero amount", fmt.Sprintf(`{"wallet_address":%q,"amount":"0","asset":"ton"}`, testWallet)},
		{"unknown asset", fmt.Sprintf(`{"wallet_address":%q,"amount":"5","asset":"doge"}`, testWallet)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := postJSON(t, app, "/deposit-intent", tt.body)
			if status != fiber.StatusBadRequest || env.Success {
				t.Errorf("status=%d success=%v, want rejection", status, env.Success)
			}
		})
	}
}

func TestGetBalance(t *testing.T) {
	app, db := setupApp(t)

	u := &models.User{
		WalletAddress:     testWallet,
		BimBalance:        decimal.NewFromInt(150),
		DepositBimBalance: decimal.NewFromInt(100),
		EarnedBimBalance:  decimal.NewFromInt(50),
		DailyTonWithdrawn: decimal.NewFromInt(3),
		DailyResetAt:      time.Now().UTC(),
		IsActive:          true,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/balance/"+testWallet, nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	var data struct {
		BimBalance  decimal.Decimal `json:"bim_balance"`
		DailyLimits map[string]struct {
			Remaining decimal.Decimal `json:"remaining"`
		} `json:"daily_limits"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if !data.BimBalance.Equal(decimal.NewFromInt(150)) {
		t.Errorf("bim_balance = %s, want 150", data.BimBalance)
	}
	if !data.DailyLimits["ton"].Remaining.Equal(decimal.NewFromInt(7)) {
		t.Errorf("ton remaining = %s, want 7", data.DailyLimits["ton"].Remaining)
	}
}

func TestGetBalanceUnknownWallet(t *testing.T) {
	app, _ := setupApp(t)

	req := httptest.NewRequest("GET", "/balance/EQunknown", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
