package config

// Adjustment records one out-of-range field that was pulled back to its
// nearest valid bound. Adjustments are reported to the caller for logging;
// configuration is clamped, never rejected.
type Adjustment struct {
	Field     string
	Requested int64
	Applied   int64
}

func clampInt(field string, v, lo, hi int, adj *[]Adjustment) int {
	if v < lo {
		*adj = append(*adj, Adjustment{Field: field, Requested: int64(v), Applied: int64(lo)})
		return lo
	}
	if v > hi {
		*adj = append(*adj, Adjustment{Field: field, Requested: int64(v), Applied: int64(hi)})
		return hi
	}
	return v
}

// Clamp pulls every logic field into its valid range and returns the list of
// adjustments that were applied.
func (c *LogicConfig) Clamp() []Adjustment {
	var adj []Adjustment

	c.SampleRateHz = clampInt("sample_rate_hz", c.SampleRateHz, MinSampleRate, MaxSampleRate, &adj)
	c.Pin = clampInt("pin", c.Pin, 0, MaxPin, &adj)
	c.BufferCapacity = clampInt("buffer_capacity", c.BufferCapacity, 2, MaxBufferCapacity, &adj)
	c.PreTriggerPercent = clampInt("pre_trigger_percent", c.PreTriggerPercent, 0, 100, &adj)
	if c.TriggerMode < TriggerNone || c.TriggerMode > TriggerLowLevel {
		adj = append(adj, Adjustment{Field: "trigger_mode", Requested: int64(c.TriggerMode), Applied: int64(TriggerNone)})
		c.TriggerMode = TriggerNone
	}

	return adj
}

// Clamp pulls every UART field into its valid range and returns the list of
// adjustments that were applied. TxPin keeps -1 as the "disabled" value.
func (c *UartConfig) Clamp() []Adjustment {
	var adj []Adjustment

	c.Baud = clampInt("baud", c.Baud, 300, 921600, &adj)
	c.DataBits = clampInt("data_bits", c.DataBits, 7, 8, &adj)
	c.StopBits = clampInt("stop_bits", c.StopBits, 1, 2, &adj)
	c.RxPin = clampInt("rx_pin", c.RxPin, 0, MaxPin, &adj)
	if c.TxPin != -1 {
		c.TxPin = clampInt("tx_pin", c.TxPin, -1, MaxPin, &adj)
	}
	if c.Parity < ParityNone || c.Parity > ParityEven {
		adj = append(adj, Adjustment{Field: "parity", Requested: int64(c.Parity), Applied: int64(ParityNone)})
		c.Parity = ParityNone
	}
	c.MaxLineLen = clampInt("max_line_len", c.MaxLineLen, 16, 1024, &adj)
	c.IdleMs = clampInt("idle_ms", c.IdleMs, 10, 60000, &adj)
	c.MaxEntries = clampInt("max_entries", c.MaxEntries, 10, 10000, &adj)

	return adj
}
