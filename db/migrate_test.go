package db

import (
	"strings"
	"testing"
)

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{
			name: "postgres scheme",
			in:   "postgres://tutor:pw@localhost:5432/tutord?sslmode=disable",
			want: "pgx5://tutor:pw@localhost:5432/tutord?sslmode=disable",
		},
		{
			name: "postgresql scheme",
			in:   "postgresql://tutor:pw@db:5432/tutord",
			want: "pgx5://tutor:pw@db:5432/tutord",
		},
		{
			name: "scheme is case insensitive",
			in:   "POSTGRES://tutor:pw@db:5432/tutord",
			want: "pgx5://tutor:pw@db:5432/tutord",
		},
		{
			name:    "mysql rejected",
			in:      "mysql://root@db:3306/tutord",
			wantErr: true,
		},
		{
			name:    "unparseable",
			in:      "postgres://bad host/db",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := migrateURL(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("migrateURL(%q) = %q, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("migrateURL(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("migrateURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMigrateRejectsNonPostgresURL(t *testing.T) {
	err := Migrate("sqlite3://file.db")
	if err == nil || !strings.Contains(err.Error(), "scheme") {
		t.Errorf("Migrate() error = %v, want scheme rejection", err)
	}
}
