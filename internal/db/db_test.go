package db

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/zulandar/supportchat/internal/models"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Connect(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func TestMySQLDSN(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		want    []string
		wantErr bool
	}{
		{
			name: "adds parseTime",
			dsn:  "root@tcp(127.0.0.1:3306)/supportchat",
			want: []string{"root@tcp(127.0.0.1:3306)/supportchat", "parseTime=true"},
		},
		{
			name: "keeps existing params",
			dsn:  "app:secret@tcp(db.internal:3307)/chat?charset=utf8mb4",
			want: []string{"app:secret@tcp(db.internal:3307)/chat", "charset=utf8mb4", "parseTime=true"},
		},
		{
			name:    "invalid",
			dsn:     "not a dsn",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MySQLDSN(tt.dsn)
			if (err != nil) != tt.wantErr {
				t.Fatalf("MySQLDSN() error = %v, wantErr %v", err, tt.wantErr)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("MySQLDSN() = %q, want to contain %q", got, w)
				}
			}
		})
	}
}

func TestConnect_UnknownDriver(t *testing.T) {
	_, err := Connect("postgres", "x")
	if err == nil || !strings.Contains(err.Error(), "unknown driver") {
		t.Fatalf("err = %v", err)
	}
}

func TestConnect_MySQLError(t *testing.T) {
	// Port 1 is unlikely to have a MySQL server; expect connection error.
	_, err := Connect(DriverMySQL, "root@tcp(127.0.0.1:1)/nonexistent")
	if err == nil {
		t.Fatal("expected error connecting to invalid port")
	}
	if !strings.Contains(err.Error(), "db: connect (mysql)") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db: connect (mysql)")
	}
}

func TestAutoMigrate_CreatesTables(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"conversations", "messages", "services"} {
		if !db.Migrator().HasTable(table) {
			t.Errorf("table %s missing", table)
		}
	}
}

func TestAllModels_Count(t *testing.T) {
	if n := len(AllModels()); n != 3 {
		t.Errorf("AllModels() returned %d models, want 3", n)
	}
}

func TestSeedServices_Upserts(t *testing.T) {
	db := testDB(t)
	svcs := []models.Service{
		{
			ID:        "7",
			Title:     "Billing",
			Links:     json.RawMessage(`["https://billing"]`),
			Documents: []models.Document{{ID: "1", Title: "Terms", URL: "https://terms"}},
			FAQs:      []models.FAQ{{ID: "1", Question: "Invoice?", Answer: "Account page"}},
		},
		{Title: "Shipping"},
	}
	if err := SeedServices(db, svcs); err != nil {
		t.Fatalf("SeedServices: %v", err)
	}

	svcs[0].Title = "Billing & Payments"
	if err := SeedServices(db, svcs[:1]); err != nil {
		t.Fatalf("SeedServices (again): %v", err)
	}

	var count int64
	db.Model(&models.ServiceRecord{}).Count(&count)
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	var rec models.ServiceRecord
	if err := db.First(&rec, 7).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	svc, err := Service(rec)
	if err != nil {
		t.Fatalf("Service: %v", err)
	}
	if svc.ID != "7" || svc.Title != "Billing & Payments" {
		t.Errorf("svc = %+v", svc)
	}
	if len(svc.FAQs) != 1 || svc.FAQs[0].Answer != "Account page" {
		t.Errorf("faqs = %+v", svc.FAQs)
	}
	if len(svc.Documents) != 1 || string(svc.Links) != `["https://billing"]` {
		t.Errorf("documents = %+v links = %s", svc.Documents, svc.Links)
	}
}

func TestSeedServices_EmptySlice(t *testing.T) {
	if err := SeedServices(nil, nil); err != nil {
		t.Errorf("SeedServices(nil, nil) = %v, want nil", err)
	}
}

func TestService_BadJSON(t *testing.T) {
	_, err := Service(models.ServiceRecord{ID: 1, FAQs: "{not json"})
	if err == nil {
		t.Fatal("expected error for corrupt faqs column")
	}
}

func TestMarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  string
	}{
		{name: "nil returns empty", input: nil, want: ""},
		{name: "empty faqs", input: []models.FAQ{}, want: ""},
		{name: "faqs", input: []models.FAQ{{ID: "1", Question: "q"}}, want: `[{"id":"1","question":"q"}]`},
		{name: "map", input: map[string]interface{}{"k": "v"}, want: `{"k":"v"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := marshalJSON(tt.input)
			if err != nil {
				t.Fatalf("marshalJSON() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("marshalJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMarshalJSON_Error(t *testing.T) {
	// Channels cannot be marshaled to JSON.
	if _, err := marshalJSON(make(chan int)); err == nil {
		t.Fatal("expected error marshaling channel")
	}
}
