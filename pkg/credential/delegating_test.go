package credential_test

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rhuss/gatehouse/pkg/credential"
	"github.com/rhuss/gatehouse/pkg/credential/builtin"
	"github.com/rhuss/gatehouse/pkg/credential/noop"
	"github.com/rhuss/gatehouse/pkg/observability"
)

// matchOnly verifies legacy payloads but cannot produce new ones.
type matchOnly struct{}

func (matchOnly) Matches(raw, payload string) bool { return strings.ToUpper(raw) == payload }

// recordingStrategy remembers the payload it was asked to compare.
type recordingStrategy struct {
	mu       sync.Mutex
	payloads []string
}

func (r *recordingStrategy) Matches(_, payload string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
	return true
}

func newNoop(t *testing.T) *credential.Delegating {
	t.Helper()
	d, err := credential.New(credential.Options{
		Schemes:       []credential.Scheme{{ID: "noop", Strategy: noop.New()}},
		DefaultEncode: "noop",
		DefaultMatch:  "noop",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return d
}

func TestNoopScenario(t *testing.T) {
	d := newNoop(t)

	record, err := d.Encode("secret123")
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if record != "{noop}secret123" {
		t.Errorf("Encode = %q, want %q", record, "{noop}secret123")
	}

	cases := []struct {
		raw, stored string
		want        bool
	}{
		{"secret123", "{noop}secret123", true},
		{"wrong", "{noop}secret123", false},
		{"secret123", "secret123", true},
		{"secret123", "{bogus}secret123", false},
	}
	for _, c := range cases {
		if got := d.Verify(c.raw, c.stored); got != c.want {
			t.Errorf("Verify(%q, %q) = %v, want %v", c.raw, c.stored, got, c.want)
		}
	}
}

func TestEmptyCredentials(t *testing.T) {
	d := newNoop(t)

	record, err := d.Encode("")
	if err != nil {
		t.Fatalf("Encode(\"\") error: %v", err)
	}
	if !d.Verify("", record) {
		t.Error("empty credential should round-trip")
	}
	// Empty stored record has no tag and uses the default match scheme.
	if !d.Verify("", "") {
		t.Error("Verify(\"\", \"\") = false, want true via default match")
	}
	if d.Verify("x", "") {
		t.Error("Verify(\"x\", \"\") = true, want false")
	}
}

func TestDefaultMatchReceivesWholeRecord(t *testing.T) {
	rec := &recordingStrategy{}
	d, err := credential.New(credential.Options{
		Schemes: []credential.Scheme{
			{ID: "noop", Strategy: noop.New()},
			{ID: "legacy", Strategy: rec},
		},
		DefaultEncode: "noop",
		DefaultMatch:  "legacy",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	for _, stored := range []string{"plain", "{}x", "{open", ""} {
		d.Verify("anything", stored)
	}

	want := []string{"plain", "{}x", "{open", ""}
	if len(rec.payloads) != len(want) {
		t.Fatalf("payloads = %q, want %q", rec.payloads, want)
	}
	for i := range want {
		if rec.payloads[i] != want[i] {
			t.Errorf("payload[%d] = %q, want %q", i, rec.payloads[i], want[i])
		}
	}
}

func TestRoundTripAllSchemes(t *testing.T) {
	params := builtin.Params{
		Cost:       4,
		Iterations: 1000,
		MemoryKiB:  64,
		Time:       1,
		Threads:    1,
		N:          1 << 4,
	}

	var schemes []credential.Scheme
	for _, kind := range builtin.Kinds() {
		s, err := builtin.New(kind, params)
		if err != nil {
			t.Fatalf("builtin.New(%q): %v", kind, err)
		}
		schemes = append(schemes, credential.Scheme{ID: kind, Strategy: s})
	}

	d, err := credential.New(credential.Options{
		Schemes:       schemes,
		DefaultEncode: "bcrypt",
		DefaultMatch:  "noop",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	inputs := []string{"", "secret123", "pässwörd", "with space and {braces}"}
	for _, id := range d.Schemes() {
		for _, x := range inputs {
			record, err := d.EncodeWith(id, x)
			if err != nil {
				t.Fatalf("EncodeWith(%q, %q): %v", id, x, err)
			}
			if !strings.HasPrefix(record, "{"+id+"}") {
				t.Errorf("record %q missing {%s} tag", record, id)
			}
			if !d.Verify(x, record) {
				t.Errorf("%s: Verify(%q, EncodeWith(%q)) = false", id, x, x)
			}
			if d.Verify(x+"!", record) {
				t.Errorf("%s: Verify(%q, EncodeWith(%q)) = true", id, x+"!", x)
			}
		}
	}

	// bcrypt refuses inputs over 72 bytes rather than truncating them, so
	// the round trip holds for every input Encode accepts.
	long := strings.Repeat("0123456789", 10)
	for _, id := range d.Schemes() {
		record, err := d.EncodeWith(id, long)
		if id == "bcrypt" {
			if err == nil {
				t.Errorf("EncodeWith(bcrypt, %d bytes) error = nil, want error", len(long))
			}
			continue
		}
		if err != nil {
			t.Fatalf("EncodeWith(%q, %d bytes): %v", id, len(long), err)
		}
		if !d.Verify(long, record) {
			t.Errorf("%s: Verify(long, EncodeWith(long)) = false", id)
		}
		if d.Verify(long[:72], record) {
			t.Errorf("%s: Verify(long[:72], EncodeWith(long)) = true", id)
		}
	}
}

func TestDistinctInputsDoNotVerify(t *testing.T) {
	d := newNoop(t)
	pairs := [][2]string{{"a", "b"}, {"secret", "secret "}, {"", "x"}, {"abc", "ab"}}
	for _, p := range pairs {
		record, err := d.Encode(p[1])
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if d.Verify(p[0], record) {
			t.Errorf("Verify(%q, Encode(%q)) = true, want false", p[0], p[1])
		}
	}
}

func TestMalformedPayloadsFailClosed(t *testing.T) {
	var schemes []credential.Scheme
	for _, kind := range builtin.Kinds() {
		s, err := builtin.New(kind, builtin.Params{Cost: 4, N: 16, MemoryKiB: 64, Time: 1})
		if err != nil {
			t.Fatalf("builtin.New(%q): %v", kind, err)
		}
		schemes = append(schemes, credential.Scheme{ID: kind, Strategy: s})
	}
	d, err := credential.New(credential.Options{Schemes: schemes, DefaultEncode: "noop", DefaultMatch: "noop"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	for _, stored := range []string{
		"{bcrypt}not-a-hash",
		"{pbkdf2}x$y$z",
		"{pbkdf2}",
		"{scrypt}$scrypt$n=abc$$",
		"{argon2}$argon2id$v=19$m=1,t=0,p=0$$",
		"{argon2}",
	} {
		if d.Verify("secret", stored) {
			t.Errorf("Verify(secret, %q) = true, want false", stored)
		}
	}
}

func TestOversizedWorkFactorsFailClosed(t *testing.T) {
	var schemes []credential.Scheme
	for _, kind := range builtin.Kinds() {
		s, err := builtin.New(kind, builtin.Params{Cost: 4, N: 16, MemoryKiB: 64, Time: 1})
		if err != nil {
			t.Fatalf("builtin.New(%q): %v", kind, err)
		}
		schemes = append(schemes, credential.Scheme{ID: kind, Strategy: s})
	}
	d, err := credential.New(credential.Options{Schemes: schemes, DefaultEncode: "scrypt", DefaultMatch: "scrypt"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	const tail = "$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5a2V5"
	for _, stored := range []string{
		"{scrypt}$scrypt$n=1125899906842624,r=1,p=1" + tail,
		"$scrypt$n=1125899906842624,r=1,p=1" + tail,
		"{scrypt}$scrypt$n=16,r=1073741824,p=1073741824" + tail,
		"{argon2}$argon2id$v=19$m=4294967295,t=1,p=1" + tail,
		"{argon2}$argon2id$v=19$m=64,t=4294967295,p=1" + tail,
		"{pbkdf2}2147483647" + tail,
		"{bcrypt}$2a$31$" + strings.Repeat("a", 53),
	} {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Verify(x, %q) panicked: %v", stored, r)
				}
			}()
			if d.Verify("x", stored) {
				t.Errorf("Verify(x, %q) = true, want false", stored)
			}
		}()
	}
}

func TestUnknownSchemeIsCounted(t *testing.T) {
	d := newNoop(t)
	before := testutil.ToFloat64(observability.CredentialVerificationsTotal.WithLabelValues("unknown", "unknown_scheme"))
	d.Verify("secret123", "{bogus}secret123")
	after := testutil.ToFloat64(observability.CredentialVerificationsTotal.WithLabelValues("unknown", "unknown_scheme"))
	if after-before != 1 {
		t.Errorf("unknown_scheme counter delta = %v, want 1", after-before)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	n := noop.New()
	tests := []struct {
		name string
		opts credential.Options
	}{
		{"no schemes", credential.Options{DefaultEncode: "noop", DefaultMatch: "noop"}},
		{"empty id", credential.Options{
			Schemes: []credential.Scheme{{ID: "", Strategy: n}}, DefaultEncode: "", DefaultMatch: "",
		}},
		{"brace in id", credential.Options{
			Schemes: []credential.Scheme{{ID: "no{op", Strategy: n}}, DefaultEncode: "no{op", DefaultMatch: "no{op",
		}},
		{"duplicate id", credential.Options{
			Schemes:       []credential.Scheme{{ID: "noop", Strategy: n}, {ID: "noop", Strategy: n}},
			DefaultEncode: "noop", DefaultMatch: "noop",
		}},
		{"nil strategy", credential.Options{
			Schemes: []credential.Scheme{{ID: "noop"}}, DefaultEncode: "noop", DefaultMatch: "noop",
		}},
		{"no default match", credential.Options{
			Schemes: []credential.Scheme{{ID: "noop", Strategy: n}}, DefaultEncode: "noop",
		}},
		{"unregistered default match", credential.Options{
			Schemes: []credential.Scheme{{ID: "noop", Strategy: n}}, DefaultEncode: "noop", DefaultMatch: "bcrypt",
		}},
		{"no default encode", credential.Options{
			Schemes: []credential.Scheme{{ID: "noop", Strategy: n}}, DefaultMatch: "noop",
		}},
		{"match-only default encode", credential.Options{
			Schemes:       []credential.Scheme{{ID: "noop", Strategy: n}, {ID: "legacy", Strategy: matchOnly{}}},
			DefaultEncode: "legacy", DefaultMatch: "noop",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := credential.New(tt.opts)
			if !errors.Is(err, credential.ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestMatchOnlyScheme(t *testing.T) {
	d, err := credential.New(credential.Options{
		Schemes: []credential.Scheme{
			{ID: "noop", Strategy: noop.New()},
			{ID: "upper", Strategy: matchOnly{}},
		},
		DefaultEncode: "noop",
		DefaultMatch:  "noop",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if !d.Verify("abc", "{upper}ABC") {
		t.Error("match-only scheme should verify existing records")
	}
	if _, err := d.EncodeWith("upper", "abc"); !errors.Is(err, credential.ErrNotEncodable) {
		t.Errorf("EncodeWith(upper) error = %v, want ErrNotEncodable", err)
	}
	if _, err := d.EncodeWith("bogus", "abc"); !errors.Is(err, credential.ErrUnknownScheme) {
		t.Errorf("EncodeWith(bogus) error = %v, want ErrUnknownScheme", err)
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak, err := builtin.New("bcrypt", builtin.Params{Cost: 4})
	if err != nil {
		t.Fatal(err)
	}
	strong, err := builtin.New("bcrypt", builtin.Params{Cost: 5})
	if err != nil {
		t.Fatal(err)
	}

	old, err := credential.New(credential.Options{
		Schemes:       []credential.Scheme{{ID: "bcrypt", Strategy: weak}, {ID: "noop", Strategy: noop.New()}},
		DefaultEncode: "bcrypt",
		DefaultMatch:  "noop",
	})
	if err != nil {
		t.Fatal(err)
	}
	current, err := credential.New(credential.Options{
		Schemes:       []credential.Scheme{{ID: "bcrypt", Strategy: strong}, {ID: "noop", Strategy: noop.New()}},
		DefaultEncode: "bcrypt",
		DefaultMatch:  "noop",
	})
	if err != nil {
		t.Fatal(err)
	}

	weakRecord, err := old.Encode("pw")
	if err != nil {
		t.Fatal(err)
	}
	strongRecord, err := current.Encode("pw")
	if err != nil {
		t.Fatal(err)
	}

	if !current.NeedsUpgrade(weakRecord) {
		t.Error("record with lower bcrypt cost should need upgrade")
	}
	if current.NeedsUpgrade(strongRecord) {
		t.Error("record with current cost should not need upgrade")
	}
	if !current.NeedsUpgrade("{noop}pw") {
		t.Error("record with non-default scheme should need upgrade")
	}
	if !current.NeedsUpgrade("pw") {
		t.Error("untagged record should need upgrade")
	}
}

func TestConcurrentVerify(t *testing.T) {
	d := newNoop(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if !d.Verify("secret123", "{noop}secret123") {
				t.Errorf("goroutine %d: Verify = false", i)
			}
		}(i)
	}
	wg.Wait()
}

func TestSchemesSorted(t *testing.T) {
	d, err := credential.New(credential.Options{
		Schemes: []credential.Scheme{
			{ID: "zeta", Strategy: noop.New()},
			{ID: "alpha", Strategy: noop.New()},
		},
		DefaultEncode: "alpha",
		DefaultMatch:  "zeta",
	})
	if err != nil {
		t.Fatal(err)
	}
	got := d.Schemes()
	if len(got) != 2 || got[0] != "alpha" || got[1] != "zeta" {
		t.Errorf("Schemes() = %v, want [alpha zeta]", got)
	}
	if d.DefaultEncodeScheme() != "alpha" || d.DefaultMatchScheme() != "zeta" {
		t.Errorf("defaults = %q/%q, want alpha/zeta", d.DefaultEncodeScheme(), d.DefaultMatchScheme())
	}
}
