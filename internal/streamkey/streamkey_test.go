package streamkey

import "testing"

func TestDerive(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Camera 1", "camera_1"},
		{"adhoc", "adhoc"},
		{"  Front Door!!Cam  ", "front_door_cam"},
		{"Front--Door", "front_door"},
		{"___Lobby___", "lobby"},
		{"", ""},
		{"ALLCAPS", "allcaps"},
		{"a.b.c", "a_b_c"},
	}

	for _, tc := range cases {
		if got := Derive(tc.name); got != tc.want {
			t.Errorf("Derive(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestDeriveIdempotent(t *testing.T) {
	names := []string{"Camera 1", "Front--Door", "already_canonical", "Mixed CASE 123"}
	for _, name := range names {
		once := Derive(name)
		twice := Derive(once)
		if once != twice {
			t.Errorf("Derive not idempotent for %q: Derive=%q Derive(Derive)=%q", name, once, twice)
		}
	}
}
