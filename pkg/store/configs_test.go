package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/GeorgiStavrev/konfig/pkg/authz"
)

func setupNamespace(t *testing.T, s *Store, tenantName string) (*Tenant, *Namespace, *User) {
	t.Helper()
	tenant, owner := registerTestTenant(t, s, tenantName)
	ns, err := s.CreateNamespace(tenant.ID, "prod", "production settings")
	if err != nil {
		t.Fatalf("CreateNamespace: %v", err)
	}
	return tenant, ns, owner
}

func TestCreateConfigStartsAtVersionOne(t *testing.T) {
	s := setupTestStore(t)
	tenant, ns, owner := setupNamespace(t, s, "acme")

	cfg, err := s.CreateConfig(tenant.ID, &Config{
		NamespaceID: ns.ID, Key: "db.url", Value: "postgres://x", ValueType: ValueString, CreatedBy: owner.ID,
	})
	if err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("version = %d, want 1", cfg.Version)
	}
	if cfg.Value != "postgres://x" {
		t.Errorf("value = %q, want plaintext back", cfg.Value)
	}

	history, err := s.GetHistory(tenant.ID, ns.ID, "db.url")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 1 || history[0].ChangeType != ChangeCreate || history[0].Version != 1 {
		t.Errorf("unexpected history: %+v", history)
	}
}

func TestCreateConfigByNamespaceName(t *testing.T) {
	s := setupTestStore(t)
	tenant, _, owner := setupNamespace(t, s, "acme")

	cfg, err := s.CreateConfig(tenant.ID, &Config{
		NamespaceID: "prod", Key: "k", Value: "v", ValueType: ValueString, CreatedBy: owner.ID,
	})
	if err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}
	if _, err := s.GetConfig(tenant.ID, "prod", cfg.Key); err != nil {
		t.Errorf("GetConfig by name: %v", err)
	}
}

func TestCreateConfigDuplicateKey(t *testing.T) {
	s := setupTestStore(t)
	tenant, ns, owner := setupNamespace(t, s, "acme")

	base := &Config{NamespaceID: ns.ID, Key: "k", Value: "v", ValueType: ValueString, CreatedBy: owner.ID}
	if _, err := s.CreateConfig(tenant.ID, base); err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}
	if _, err := s.CreateConfig(tenant.ID, base); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("err = %v, want ErrDuplicateKey", err)
	}
}

func TestConfigValueEncryptedAtRest(t *testing.T) {
	s := setupTestStore(t)
	tenant, ns, owner := setupNamespace(t, s, "acme")

	if _, err := s.CreateConfig(tenant.ID, &Config{
		NamespaceID: ns.ID, Key: "secret", Value: "hunter2", ValueType: ValueString, Secret: true, CreatedBy: owner.ID,
	}); err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}

	var raw string
	if err := s.DB().QueryRow(`SELECT value FROM configs WHERE key = 'secret'`).Scan(&raw); err != nil {
		t.Fatalf("raw query: %v", err)
	}
	if raw == "hunter2" {
		t.Error("value stored in plaintext")
	}

	// History snapshots are encrypted too.
	if err := s.DB().QueryRow(`SELECT value FROM config_history WHERE key = 'secret'`).Scan(&raw); err != nil {
		t.Fatalf("raw history query: %v", err)
	}
	if raw == "hunter2" {
		t.Error("history value stored in plaintext")
	}
}

func TestUpdateConfigBumpsVersionGaplessly(t *testing.T) {
	s := setupTestStore(t)
	tenant, ns, owner := setupNamespace(t, s, "acme")

	if _, err := s.CreateConfig(tenant.ID, &Config{
		NamespaceID: ns.ID, Key: "k", Value: "v1", ValueType: ValueString, CreatedBy: owner.ID,
	}); err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}

	for i := 2; i <= 5; i++ {
		cfg, err := s.UpdateConfig(tenant.ID, ns.ID, "k", fmt.Sprintf("v%d", i), nil, owner.ID)
		if err != nil {
			t.Fatalf("UpdateConfig #%d: %v", i, err)
		}
		if cfg.Version != int64(i) {
			t.Errorf("version = %d, want %d", cfg.Version, i)
		}
	}

	history, err := s.GetHistory(tenant.ID, ns.ID, "k")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("got %d history rows, want 5", len(history))
	}
	for i, h := range history {
		if h.Version != int64(i+1) {
			t.Errorf("history[%d].Version = %d, want %d", i, h.Version, i+1)
		}
		if h.Value != fmt.Sprintf("v%d", i+1) {
			t.Errorf("history[%d].Value = %q, want v%d", i, h.Value, i+1)
		}
	}
}

func TestUpdateConfigVersionConflict(t *testing.T) {
	s := setupTestStore(t)
	tenant, ns, owner := setupNamespace(t, s, "acme")

	if _, err := s.CreateConfig(tenant.ID, &Config{
		NamespaceID: ns.ID, Key: "k", Value: "v1", ValueType: ValueString, CreatedBy: owner.ID,
	}); err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}

	stale := int64(99)
	if _, err := s.UpdateConfig(tenant.ID, ns.ID, "k", "v2", &stale, owner.ID); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("err = %v, want ErrVersionConflict", err)
	}

	// Nothing changed: the value is still v1 at version 1.
	cfg, err := s.GetConfig(tenant.ID, ns.ID, "k")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if cfg.Version != 1 || cfg.Value != "v1" {
		t.Errorf("config = v%d %q, want v1 \"v1\"", cfg.Version, cfg.Value)
	}

	current := int64(1)
	if _, err := s.UpdateConfig(tenant.ID, ns.ID, "k", "v2", &current, owner.ID); err != nil {
		t.Errorf("matching expected version: %v", err)
	}
}

func TestConcurrentConditionalUpdatesOneWinner(t *testing.T) {
	s := setupTestStore(t)
	tenant, ns, owner := setupNamespace(t, s, "acme")

	if _, err := s.CreateConfig(tenant.ID, &Config{
		NamespaceID: ns.ID, Key: "k", Value: "v1", ValueType: ValueString, CreatedBy: owner.ID,
	}); err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}

	// Two writers race with the same expected version: exactly one wins,
	// the other observes the conflict, never a driver error.
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			expected := int64(1)
			_, errs[i] = s.UpdateConfig(tenant.ID, ns.ID, "k", fmt.Sprintf("w%d", i), &expected, owner.ID)
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrVersionConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Errorf("got %d wins and %d conflicts, want 1 and 1", wins, conflicts)
	}

	cfg, err := s.GetConfig(tenant.ID, ns.ID, "k")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if cfg.Version != 2 {
		t.Errorf("version = %d, want 2", cfg.Version)
	}
}

func TestConcurrentUnconditionalUpdatesSerialize(t *testing.T) {
	s := setupTestStore(t)
	tenant, ns, owner := setupNamespace(t, s, "acme")

	if _, err := s.CreateConfig(tenant.ID, &Config{
		NamespaceID: ns.ID, Key: "k", Value: "v1", ValueType: ValueString, CreatedBy: owner.ID,
	}); err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}

	// Unconditional writers queue behind each other; both succeed.
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.UpdateConfig(tenant.ID, ns.ID, "k", fmt.Sprintf("w%d", i), nil, owner.ID)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("writer %d: %v", i, err)
		}
	}

	cfg, err := s.GetConfig(tenant.ID, ns.ID, "k")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if cfg.Version != 3 {
		t.Errorf("version = %d, want 3", cfg.Version)
	}

	// The trail stays gapless regardless of which writer landed first.
	history, err := s.GetHistory(tenant.ID, ns.ID, "k")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("got %d history rows, want 3", len(history))
	}
	for i, h := range history {
		if h.Version != int64(i+1) {
			t.Errorf("history[%d].Version = %d, want %d", i, h.Version, i+1)
		}
	}
}

func TestDeleteConfigKeepsHistory(t *testing.T) {
	s := setupTestStore(t)
	tenant, ns, owner := setupNamespace(t, s, "acme")

	if _, err := s.CreateConfig(tenant.ID, &Config{
		NamespaceID: ns.ID, Key: "k", Value: "v1", ValueType: ValueString, CreatedBy: owner.ID,
	}); err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}
	if _, err := s.UpdateConfig(tenant.ID, ns.ID, "k", "v2", nil, owner.ID); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if err := s.DeleteConfig(tenant.ID, ns.ID, "k", owner.ID); err != nil {
		t.Fatalf("DeleteConfig: %v", err)
	}

	if _, err := s.GetConfig(tenant.ID, ns.ID, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete err = %v, want ErrNotFound", err)
	}

	history, err := s.GetHistory(tenant.ID, ns.ID, "k")
	if err != nil {
		t.Fatalf("GetHistory after delete: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("got %d history rows, want 3", len(history))
	}
	last := history[len(history)-1]
	if last.ChangeType != ChangeDelete || last.Value != "v2" || last.Version != 2 {
		t.Errorf("terminal row = %+v, want delete of v2", last)
	}
}

func TestRecreatedConfigRestartsAtVersionOne(t *testing.T) {
	s := setupTestStore(t)
	tenant, ns, owner := setupNamespace(t, s, "acme")

	if _, err := s.CreateConfig(tenant.ID, &Config{
		NamespaceID: ns.ID, Key: "k", Value: "old", ValueType: ValueString, CreatedBy: owner.ID,
	}); err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}
	if err := s.DeleteConfig(tenant.ID, ns.ID, "k", owner.ID); err != nil {
		t.Fatalf("DeleteConfig: %v", err)
	}

	cfg, err := s.CreateConfig(tenant.ID, &Config{
		NamespaceID: ns.ID, Key: "k", Value: "new", ValueType: ValueString, CreatedBy: owner.ID,
	})
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("version = %d, want 1", cfg.Version)
	}

	// Both incarnations share one trail, ordered by insertion.
	history, err := s.GetHistory(tenant.ID, ns.ID, "k")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("got %d history rows, want 3", len(history))
	}
	if history[2].ChangeType != ChangeCreate || history[2].Value != "new" {
		t.Errorf("latest row = %+v, want create of new incarnation", history[2])
	}
}

func TestListConfigsOmitsValues(t *testing.T) {
	s := setupTestStore(t)
	tenant, ns, owner := setupNamespace(t, s, "acme")

	for _, key := range []string{"b", "a", "c"} {
		if _, err := s.CreateConfig(tenant.ID, &Config{
			NamespaceID: ns.ID, Key: key, Value: "secret-" + key, ValueType: ValueString, CreatedBy: owner.ID,
		}); err != nil {
			t.Fatalf("CreateConfig(%s): %v", key, err)
		}
	}

	configs, err := s.ListConfigs(tenant.ID, ns.ID)
	if err != nil {
		t.Fatalf("ListConfigs: %v", err)
	}
	if len(configs) != 3 {
		t.Fatalf("got %d configs, want 3", len(configs))
	}
	if configs[0].Key != "a" || configs[1].Key != "b" || configs[2].Key != "c" {
		t.Errorf("configs not ordered by key: %v %v %v", configs[0].Key, configs[1].Key, configs[2].Key)
	}
	for _, cfg := range configs {
		if cfg.Value != "" {
			t.Errorf("config %s leaks value %q in listing", cfg.Key, cfg.Value)
		}
	}
}

func TestIterConfigsRestartable(t *testing.T) {
	s := setupTestStore(t)
	tenant, ns, owner := setupNamespace(t, s, "acme")

	for _, key := range []string{"a", "b", "c"} {
		if _, err := s.CreateConfig(tenant.ID, &Config{
			NamespaceID: ns.ID, Key: key, Value: "v-" + key, ValueType: ValueString, CreatedBy: owner.ID,
		}); err != nil {
			t.Fatalf("CreateConfig(%s): %v", key, err)
		}
	}

	seq := s.IterConfigs(tenant.ID, ns.ID)

	// First pass, stopping early.
	var first []string
	for cfg, err := range seq {
		if err != nil {
			t.Fatalf("iter: %v", err)
		}
		first = append(first, cfg.Key)
		if len(first) == 2 {
			break
		}
	}
	if len(first) != 2 {
		t.Fatalf("first pass got %v", first)
	}

	// Second pass over the same sequence sees everything again, decrypted.
	var second []string
	for cfg, err := range seq {
		if err != nil {
			t.Fatalf("iter: %v", err)
		}
		if cfg.Value != "v-"+cfg.Key {
			t.Errorf("config %s value = %q", cfg.Key, cfg.Value)
		}
		second = append(second, cfg.Key)
	}
	if len(second) != 3 {
		t.Errorf("second pass got %v, want all 3", second)
	}
}

func TestConfigCrossTenantIsolation(t *testing.T) {
	s := setupTestStore(t)
	tenantA, nsA, ownerA := setupNamespace(t, s, "acme")
	tenantB, _ := registerTestTenant(t, s, "globex")

	if _, err := s.CreateConfig(tenantA.ID, &Config{
		NamespaceID: nsA.ID, Key: "k", Value: "v", ValueType: ValueString, CreatedBy: ownerA.ID,
	}); err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}

	// Tenant B addressing tenant A's namespace by ID gets not-found, never
	// a permission error that would confirm existence.
	if _, err := s.GetConfig(tenantB.ID, nsA.ID, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get err = %v, want ErrNotFound", err)
	}
	configs, err := s.ListConfigs(tenantB.ID, nsA.ID)
	if err != nil {
		t.Fatalf("ListConfigs: %v", err)
	}
	if len(configs) != 0 {
		t.Errorf("tenant B sees %d of tenant A's configs", len(configs))
	}
	if _, err := s.UpdateConfig(tenantB.ID, nsA.ID, "k", "x", nil, "intruder"); !errors.Is(err, ErrNotFound) {
		t.Errorf("update err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteConfig(tenantB.ID, nsA.ID, "k", "intruder"); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetHistory(tenantB.ID, nsA.ID, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("history err = %v, want ErrNotFound", err)
	}
}

func TestValueValidation(t *testing.T) {
	s := setupTestStore(t)
	tenant, ns, owner := setupNamespace(t, s, "acme")

	tests := []struct {
		name      string
		valueType ValueType
		schema    string
		value     string
		wantErr   bool
	}{
		{"plain string", ValueString, "", "anything", false},
		{"string within max_len", ValueString, `{"max_len": 5}`, "abc", false},
		{"string over max_len", ValueString, `{"max_len": 5}`, "abcdef", true},
		{"valid number", ValueNumber, "", "3.14", false},
		{"not a number", ValueNumber, "", "abc", true},
		{"number in range", ValueNumber, `{"min": 0, "max": 10}`, "5", false},
		{"number below min", ValueNumber, `{"min": 0}`, "-1", true},
		{"number above max", ValueNumber, `{"max": 10}`, "11", true},
		{"select allowed option", ValueSelect, `{"options": ["dev", "prod"]}`, "prod", false},
		{"select disallowed option", ValueSelect, `{"options": ["dev", "prod"]}`, "staging", true},
		{"select without schema", ValueSelect, "", "dev", true},
		{"valid json", ValueJSON, "", `{"a": [1, 2]}`, false},
		{"invalid json", ValueJSON, "", `{"a": `, true},
		{"unknown type", ValueType("blob"), "", "x", true},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateConfig(tenant.ID, &Config{
				NamespaceID: ns.ID,
				Key:         fmt.Sprintf("key-%d", i),
				Value:       tt.value,
				ValueType:   tt.valueType,
				Schema:      tt.schema,
				CreatedBy:   owner.ID,
			})
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("err = %v, want ErrValidation", err)
				}
			} else if err != nil {
				t.Errorf("CreateConfig: %v", err)
			}
		})
	}
}

func TestUpdateValidatesAgainstStoredSchema(t *testing.T) {
	s := setupTestStore(t)
	tenant, ns, owner := setupNamespace(t, s, "acme")

	if _, err := s.CreateConfig(tenant.ID, &Config{
		NamespaceID: ns.ID, Key: "env", Value: "dev", ValueType: ValueSelect,
		Schema: `{"options": ["dev", "prod"]}`, CreatedBy: owner.ID,
	}); err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}

	if _, err := s.UpdateConfig(tenant.ID, ns.ID, "env", "staging", nil, owner.ID); !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
	if _, err := s.UpdateConfig(tenant.ID, ns.ID, "env", "prod", nil, owner.ID); err != nil {
		t.Errorf("UpdateConfig: %v", err)
	}
}

func TestDeleteNamespaceRecordsConfigDeletes(t *testing.T) {
	s := setupTestStore(t)
	tenant, ns, owner := setupNamespace(t, s, "acme")

	for _, key := range []string{"a", "b"} {
		if _, err := s.CreateConfig(tenant.ID, &Config{
			NamespaceID: ns.ID, Key: key, Value: "v-" + key, ValueType: ValueString, CreatedBy: owner.ID,
		}); err != nil {
			t.Fatalf("CreateConfig(%s): %v", key, err)
		}
	}

	if err := s.DeleteNamespace(tenant.ID, ns.ID, owner.ID); err != nil {
		t.Fatalf("DeleteNamespace: %v", err)
	}

	if _, err := s.GetNamespace(tenant.ID, ns.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get err = %v, want ErrNotFound", err)
	}

	// Delete rows are written for every config before the cascade. The
	// namespace is gone, so read the trail directly.
	var count int
	if err := s.DB().QueryRow(
		`SELECT COUNT(*) FROM config_history WHERE namespace_id = ? AND change_type = 'delete'`,
		ns.ID,
	).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("got %d delete rows, want 2", count)
	}
}

func TestDuplicateNamespacePerTenant(t *testing.T) {
	s := setupTestStore(t)
	tenantA, _, _ := setupNamespace(t, s, "acme")
	tenantB, _ := registerTestTenant(t, s, "globex")

	if _, err := s.CreateNamespace(tenantA.ID, "prod", ""); !errors.Is(err, ErrDuplicateNamespace) {
		t.Errorf("err = %v, want ErrDuplicateNamespace", err)
	}
	// Same name in another tenant is fine.
	if _, err := s.CreateNamespace(tenantB.ID, "prod", ""); err != nil {
		t.Errorf("cross-tenant CreateNamespace: %v", err)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	s := setupTestStore(t)
	tenant, owner := registerTestTenant(t, s, "acme")

	created, err := s.CreateAPIKey(&APIKey{
		TenantID:  tenant.ID,
		Name:      "ci",
		KeyHash:   "deadbeef",
		Prefix:    "konfig_abcde",
		Scopes:    []authz.Scope{authz.ScopeRead, authz.ScopeWrite},
		CreatedBy: owner.ID,
	})
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if created.Revoked() {
		t.Error("new key should not be revoked")
	}

	byPrefix, err := s.GetAPIKeyByPrefix("konfig_abcde")
	if err != nil {
		t.Fatalf("GetAPIKeyByPrefix: %v", err)
	}
	if byPrefix.ID != created.ID {
		t.Errorf("id = %s, want %s", byPrefix.ID, created.ID)
	}
	if len(byPrefix.Scopes) != 2 {
		t.Errorf("scopes = %v, want read,write", byPrefix.Scopes)
	}

	if err := s.TouchAPIKey(created.ID); err != nil {
		t.Fatalf("TouchAPIKey: %v", err)
	}
	touched, _ := s.GetAPIKey(tenant.ID, created.ID)
	if touched.LastUsedAt == nil {
		t.Error("LastUsedAt not set after touch")
	}

	if err := s.RevokeAPIKey(tenant.ID, created.ID); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	if err := s.RevokeAPIKey(tenant.ID, created.ID); !errors.Is(err, ErrKeyRevoked) {
		t.Errorf("double revoke err = %v, want ErrKeyRevoked", err)
	}

	revoked, _ := s.GetAPIKey(tenant.ID, created.ID)
	if !revoked.Revoked() {
		t.Error("key should be revoked")
	}

	// Cross-tenant revocation is a not-found.
	other, _ := registerTestTenant(t, s, "globex")
	if err := s.RevokeAPIKey(other.ID, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-tenant revoke err = %v, want ErrNotFound", err)
	}
}
