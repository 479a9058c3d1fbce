package units

import "testing"

func TestBinarySizeConstants(t *testing.T) {
	t.Parallel()

	if MiB != 1024*KiB || GiB != 1024*MiB {
		t.Errorf("unexpected multipliers: KiB=%d MiB=%d GiB=%d", KiB, MiB, GiB)
	}
}

func TestPrettyFloat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   float64
		want string
	}{
		{"zero", 0, "0"},
		{"rounds to zero", 0.004, "0"},
		{"fraction", 0.5, "0.50"},
		{"grouping", 12039123.439, "12,039,123.44"},
		{"thousand", 1500, "1,500.00"},
		{"negative", -2048, "-2,048.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := PrettyFloat(tt.in); got != tt.want {
				t.Errorf("PrettyFloat(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  float64
		unit Unit
		ref  float64
		want string
	}{
		{"bytes below switch", 1500, Bytes, 1500, "1,500.00B"},
		{"bytes KiB", 3 * KiB, Bytes, 3 * KiB, "3.00KiB"},
		{"bytes MiB", 3 * MiB, Bytes, 3 * MiB, "3.00MiB"},
		{"bytes GiB", 923044592344234, Bytes, 923044592344234, "859,652.27GiB"},
		{"bytes shared scale", 512 * KiB, Bytes, 3 * MiB, "0.50MiB"},
		{"nanoseconds", 2500000, Nanoseconds, 2500000, "2.50ms"},
		{"microseconds", 4000, Nanoseconds, 4000, "4.00μs"},
		{"seconds", 3e9, Nanoseconds, 3e9, "3.00s"},
		{"amount plain", 999, Amount, 999, "999.00"},
		{"amount K", 5000, Amount, 5000, "5.00K"},
		{"amount M", 7e6, Amount, 7e6, "7.00M"},
		{"negative ref", -5000, Amount, -5000, "-5.00K"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Format(tt.raw, tt.unit, tt.ref); got != tt.want {
				t.Errorf("Format(%v, %s, %v) = %q, want %q", tt.raw, tt.unit, tt.ref, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	if Parse("bytes") != Bytes || Parse("nanoseconds") != Nanoseconds {
		t.Error("known units must parse to themselves")
	}

	if Parse("instructions") != Amount || Parse("") != Amount {
		t.Error("unknown units must parse to Amount")
	}
}

func TestAxisFloorAndBase(t *testing.T) {
	t.Parallel()

	if Bytes.AxisFloor() != KiB || Bytes.TickBase() != 2 {
		t.Error("bytes axis must floor at 1KiB with power-of-two ticks")
	}

	if Amount.AxisFloor() != 1000 || Nanoseconds.TickBase() != 10 {
		t.Error("non-byte axes must floor at 1000 with power-of-ten ticks")
	}
}
