package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/openpacs/pacsd/pkg/object"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"test/file:name", "test_file_name"},
		{"1.2.3.4.5", "1.2.3.4.5"},
		{"normal_name-123", "normal_name-123"},
		{"a b\tc", "a_b_c"},
		{"../escape", ".._escape"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []string{"test/file:name", "1.2.3.4.5", "weird\x00bytes", "日本語"}
	for _, in := range inputs {
		once := Sanitize(in)
		twice := Sanitize(once)
		if once != twice {
			t.Errorf("Sanitize not idempotent for %q: %q != %q", in, once, twice)
		}
		for i := 0; i < len(once); i++ {
			c := once[i]
			ok := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
				c == '-' || c == '_' || c == '.'
			if !ok {
				t.Errorf("Sanitize(%q) produced invalid byte %q", in, c)
			}
		}
	}
}

func TestResolvePath_Layout(t *testing.T) {
	obj := &object.Object{
		PatientID:         "P1",
		StudyInstanceUID:  "1.2.3",
		SeriesInstanceUID: "4.5.6",
		SOPInstanceUID:    "7.8.9",
	}

	tests := []struct {
		name      string
		byPatient bool
		byStudy   bool
		want      string
	}{
		{"full layout", true, true, filepath.Join("P1", "1.2.3", "4.5.6", "7.8.9.dcm")},
		{"no patient", false, true, filepath.Join("1.2.3", "4.5.6", "7.8.9.dcm")},
		{"no study", true, false, filepath.Join("P1", "4.5.6", "7.8.9.dcm")},
		{"series only", false, false, filepath.Join("4.5.6", "7.8.9.dcm")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := t.TempDir()
			store, err := New(base, tt.byPatient, tt.byStudy)
			if err != nil {
				t.Fatalf("failed to create store: %v", err)
			}

			got, err := store.ResolvePath(obj)
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if want := filepath.Join(base, tt.want); got != want {
				t.Errorf("path = %q, want %q", got, want)
			}

			// Deterministic: a second resolution yields the same path.
			again, err := store.ResolvePath(obj)
			if err != nil {
				t.Fatalf("second resolve failed: %v", err)
			}
			if again != got {
				t.Errorf("resolution not deterministic: %q != %q", again, got)
			}

			if fi, err := os.Stat(filepath.Dir(got)); err != nil || !fi.IsDir() {
				t.Errorf("directory chain not created for %q: %v", got, err)
			}
		})
	}
}

func TestResolvePath_SanitizesSegments(t *testing.T) {
	base := t.TempDir()
	store, err := New(base, true, true)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	obj := &object.Object{
		PatientID:         "P/1",
		StudyInstanceUID:  "1.2:3",
		SeriesInstanceUID: "4 5",
		SOPInstanceUID:    "6*7",
	}
	got, err := store.ResolvePath(obj)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	want := filepath.Join(base, "P_1", "1.2_3", "4_5", "6_7.dcm")
	if got != want {
		t.Errorf("path = %q, want %q", got, want)
	}
}

func TestResolvePath_OmitsMissingSegments(t *testing.T) {
	base := t.TempDir()
	store, err := New(base, true, true)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	obj := &object.Object{SOPInstanceUID: "7.8.9"}
	got, err := store.ResolvePath(obj)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if want := filepath.Join(base, "7.8.9.dcm"); got != want {
		t.Errorf("path = %q, want %q", got, want)
	}
}

func TestWrite(t *testing.T) {
	base := t.TempDir()
	store, err := New(base, true, true)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	obj := &object.Object{
		PatientID:         "P1",
		StudyInstanceUID:  "S1",
		SeriesInstanceUID: "SE1",
		SOPInstanceUID:    "I1",
	}
	data := []byte("not really dicom")

	path, size, err := store.Write(obj, data)
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if size != int64(len(data)) {
		t.Errorf("size = %d, want %d", size, len(data))
	}
	if want := filepath.Join(base, "P1", "S1", "SE1", "I1.dcm"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	stored, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read back: %v", err)
	}
	if string(stored) != string(data) {
		t.Errorf("stored bytes differ from written bytes")
	}
}
