package iso7816

// Transaction is one physical exchange: a C-APDU and the R-APDU that answered it.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess checks if the transaction ended with a successful status.
// It returns false if the response is missing.
func (t *Transaction) IsSuccess() bool {
	if t.Response == nil {
		return false
	}
	return t.Response.Status.IsSuccess()
}

// Trace is every physical exchange made for one logical command, in order.
// A SELECT on a T=0 card, for instance, is the SELECT answered 61XX followed by a GET RESPONSE.
type Trace []Transaction

// Last returns the final transaction, or nil for an empty trace.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess reports whether the final transaction succeeded.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	if last == nil {
		return false
	}
	return last.IsSuccess()
}

// Status returns the final status word, or 0 for an empty trace.
func (t Trace) Status() StatusWord {
	last := t.Last()
	if last == nil || last.Response == nil {
		return 0
	}
	return last.Response.Status
}

// Data returns the response data of the logical command. Data split over several
// 61XX / GET RESPONSE rounds is joined back together.
func (t Trace) Data() []byte {
	end := len(t) - 1
	if end < 0 || t[end].Response == nil {
		return nil
	}
	start := end
	for start > 0 && t[start-1].Response != nil && t[start-1].Response.Status.SW1() == 0x61 {
		start--
	}

	var out []byte
	for _, tx := range t[start : end+1] {
		out = append(out, tx.Response.Data...)
	}
	return out
}

// Err returns a *StatusError unless the trace ended on 9000.
func (t Trace) Err() error {
	if sw := t.Status(); sw != SW_NO_ERROR {
		return &StatusError{Status: sw}
	}
	return nil
}
