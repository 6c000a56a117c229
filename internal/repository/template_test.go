package repository

import (
	"context"
	"reflect"
	"testing"

	"github.com/fernmail/fern/internal/models"
)

func TestTemplateRepository_CreateAndGet(t *testing.T) {
	repo := NewTemplateRepository(setupTestDB(t))
	ctx := context.Background()

	tmpl := &models.Template{
		Name:      "Welcome",
		Subject:   "Welcome {{subscriber_username}}",
		HTML:      "<h1>Hello {{subscriber_username}}</h1><p>{{offer_code}}</p>",
		Text:      "Hello {{subscriber_username}}",
		Variables: []string{"subscriber_username", "offer_code", "offer_code"},
		IsActive:  true,
	}

	if err := repo.Create(ctx, tmpl); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if tmpl.ID == "" {
		t.Error("Create() did not set ID")
	}

	got, err := repo.GetByID(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetByID() returned nil")
	}
	if got.Name != "Welcome" || got.Subject != tmpl.Subject {
		t.Errorf("GetByID() = %+v", got)
	}

	// declared list deduplicated at the boundary
	want := []string{"subscriber_username", "offer_code"}
	if !reflect.DeepEqual(got.Variables, want) {
		t.Errorf("Variables = %v, want %v", got.Variables, want)
	}
}

func TestTemplateRepository_GetByIDNotFound(t *testing.T) {
	repo := NewTemplateRepository(setupTestDB(t))

	got, err := repo.GetByID(context.Background(), "non-existent")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got != nil {
		t.Error("GetByID() should return nil for non-existent ID")
	}
}

func TestTemplateRepository_LegacyVariableEncodings(t *testing.T) {
	database := setupTestDB(t)
	repo := NewTemplateRepository(database)
	ctx := context.Background()

	// old rows carry a JSON-array or comma-separated variables column;
	// reads must normalize both
	rows := []struct {
		id   string
		vars string
		want []string
	}{
		{"legacy-json", `["a","b","a"]`, []string{"a", "b"}},
		{"legacy-csv", "a, b ,", []string{"a", "b"}},
	}
	for _, row := range rows {
		_, err := database.Exec(`
			INSERT INTO templates (id, name, subject, html, variables)
			VALUES (?, 'Legacy', 'S', '<p/>', ?)`, row.id, row.vars)
		if err != nil {
			t.Fatalf("seed legacy row: %v", err)
		}
	}

	for _, row := range rows {
		got, err := repo.GetByID(ctx, row.id)
		if err != nil {
			t.Fatalf("GetByID(%s) error = %v", row.id, err)
		}
		if !reflect.DeepEqual(got.Variables, row.want) {
			t.Errorf("GetByID(%s).Variables = %v, want %v", row.id, got.Variables, row.want)
		}
	}
}

func TestTemplateRepository_List(t *testing.T) {
	repo := NewTemplateRepository(setupTestDB(t))
	ctx := context.Background()

	for _, name := range []string{"Spring Promo", "Autumn Promo", "Digest"} {
		tmpl := &models.Template{Name: name, Subject: "s", HTML: "<p/>", IsActive: true}
		if err := repo.Create(ctx, tmpl); err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}
	inactive := &models.Template{Name: "Old", Subject: "s", HTML: "<p/>", IsActive: false}
	if err := repo.Create(ctx, inactive); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	all, total, err := repo.List(ctx, models.TemplateListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 4 || len(all) != 4 {
		t.Errorf("List() total = %d len = %d, want 4", total, len(all))
	}

	active, total, err := repo.List(ctx, models.TemplateListFilter{ActiveOnly: true})
	if err != nil {
		t.Fatalf("List(active) error = %v", err)
	}
	if total != 3 || len(active) != 3 {
		t.Errorf("List(active) total = %d len = %d, want 3", total, len(active))
	}

	promos, total, err := repo.List(ctx, models.TemplateListFilter{Search: "Promo"})
	if err != nil {
		t.Fatalf("List(search) error = %v", err)
	}
	if total != 2 || len(promos) != 2 {
		t.Errorf("List(search) total = %d len = %d, want 2", total, len(promos))
	}

	paged, total, err := repo.List(ctx, models.TemplateListFilter{Limit: 2})
	if err != nil {
		t.Fatalf("List(limit) error = %v", err)
	}
	if total != 4 || len(paged) != 2 {
		t.Errorf("List(limit) total = %d len = %d, want total 4 len 2", total, len(paged))
	}
}

func TestTemplateRepository_Update(t *testing.T) {
	repo := NewTemplateRepository(setupTestDB(t))
	ctx := context.Background()

	tmpl := &models.Template{Name: "Before", Subject: "s", HTML: "<p/>", IsActive: true}
	if err := repo.Create(ctx, tmpl); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tmpl.Name = "After"
	tmpl.Variables = []string{"x"}
	if err := repo.Update(ctx, tmpl); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "After" || !reflect.DeepEqual(got.Variables, []string{"x"}) {
		t.Errorf("after update = %+v", got)
	}

	missing := &models.Template{ID: "nope", Name: "n", Subject: "s", HTML: "h"}
	if err := repo.Update(ctx, missing); err != ErrNotFound {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}
}

func TestTemplateRepository_Delete(t *testing.T) {
	repo := NewTemplateRepository(setupTestDB(t))
	ctx := context.Background()

	tmpl := &models.Template{Name: "Doomed", Subject: "s", HTML: "<p/>"}
	if err := repo.Create(ctx, tmpl); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Delete(ctx, tmpl.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, err := repo.GetByID(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got != nil {
		t.Error("template still present after Delete()")
	}
}
