package iso7816

import (
	"fmt"

	"github.com/gregLibert/secure-element/pkg/bits"
)

// Some status words carry a value in SW2 rather than a fixed meaning:
//
//	61XX  XX bytes are waiting for GET RESPONSE
//	6CXX  wrong Le, XX is the right one
//	62XX, 64XX with XX in 02..80  triggering by the card, XX bytes to query
//	63CX  counter, X is e.g. the remaining PIN tries

// StatusWord is the SW1 SW2 trailer of a response.
type StatusWord uint16

// NewStatusWord creates a StatusWord instance from two separate bytes.
func NewStatusWord(sw1, sw2 byte) StatusWord {
	return StatusWord(uint16(sw1)<<8 | uint16(sw2))
}

func (sw StatusWord) SW1() byte {
	return byte(sw >> 8)
}

func (sw StatusWord) SW2() byte {
	return byte(sw)
}

// IsTriggeringByCard checks if the status indicates a "Triggering by the card" event.
func (sw StatusWord) IsTriggeringByCard() bool {
	sw1, sw2 := sw.SW1(), sw.SW2()
	return (sw1 == 0x62 || sw1 == 0x64) && sw2 >= 0x02 && sw2 <= 0x80
}

// IsCounter checks if the status is 63CX.
func (sw StatusWord) IsCounter() bool {
	return sw.SW1() == 0x63 && bits.GetRange(sw.SW2(), 8, 5) == 0x0C
}

// IsSuccess returns true for 9000 and for 61XX (data still available).
func (sw StatusWord) IsSuccess() bool {
	return sw == SW_NO_ERROR || sw.SW1() == 0x61
}

// IsWarning returns true for 62XX and 63XX.
func (sw StatusWord) IsWarning() bool {
	sw1 := sw.SW1()
	return sw1 == 0x62 || sw1 == 0x63
}

// IsError returns true for 64XX to 6FXX.
func (sw StatusWord) IsError() bool {
	sw1 := sw.SW1()
	return sw1 >= 0x64 && sw1 <= 0x6F
}

// String returns the bare hex value, e.g. "6A82".
func (sw StatusWord) String() string {
	return fmt.Sprintf("%04X", uint16(sw))
}

// Verbose returns a human-readable description of the status word.
func (sw StatusWord) Verbose() string {
	sw1, sw2 := sw.SW1(), sw.SW2()

	switch {
	case sw.IsTriggeringByCard():
		action := "Warning (Triggering)"
		if sw1 == 0x64 {
			action = "Error/Abort (Triggering)"
		}
		return fmt.Sprintf("[%s] %s: Card expects query of %d bytes", sw, action, sw2)
	case sw.IsCounter():
		return fmt.Sprintf("[%s] Warning: State changed, counter = %d", sw, bits.GetRange(sw2, 4, 1))
	case sw1 == 0x61:
		return fmt.Sprintf("[%s] Process completed, %d bytes available", sw, sw2)
	case sw1 == 0x6C:
		return fmt.Sprintf("[%s] Wrong length, correct Le is %d", sw, sw2)
	}

	if desc, ok := swDescriptions[sw]; ok {
		return fmt.Sprintf("[%s] %s", sw, desc)
	}
	return fmt.Sprintf("[%s] %s", sw, sw.category())
}

// category is the fallback description keyed on SW1.
func (sw StatusWord) category() string {
	switch sw.SW1() {
	case 0x62:
		return "Warning: NV memory unchanged"
	case 0x63:
		return "Warning: NV memory changed"
	case 0x64:
		return "Execution Error: NV memory unchanged"
	case 0x65:
		return "Execution Error: NV memory changed"
	case 0x66:
		return "Execution Error: Security issue"
	case 0x68:
		return "Checking Error: Function not supported"
	case 0x69:
		return "Checking Error: Command not allowed"
	case 0x6A:
		return "Checking Error: Wrong parameters"
	default:
		return "Unknown Status"
	}
}

// Status words a Secure Element commonly answers with.
const (
	SW_NO_ERROR StatusWord = 0x9000

	SW_WARN_NO_INFO            StatusWord = 0x6200
	SW_WARN_FILE_DEACTIVATED   StatusWord = 0x6283
	SW_WARN_TRIGGERING_BY_CARD StatusWord = 0x6202
	SW_WARN_NV_CHANGED_NO_INFO StatusWord = 0x6300

	SW_ERR_MEMORY_FAILURE            StatusWord = 0x6581
	SW_ERR_WRONG_LENGTH              StatusWord = 0x6700
	SW_ERR_LOGICAL_CHANNEL_NOT_SUPP  StatusWord = 0x6881
	SW_ERR_SECURE_MESSAGING_NOT_SUPP StatusWord = 0x6882
	SW_ERR_SECURITY_STATUS_NOT_SAT   StatusWord = 0x6982
	SW_ERR_COND_OF_USE_NOT_SAT       StatusWord = 0x6985
	SW_ERR_INCORRECT_PARAMS_DATA     StatusWord = 0x6A80
	SW_ERR_FUNC_NOT_SUPPORTED        StatusWord = 0x6A81
	SW_ERR_FILE_NOT_FOUND            StatusWord = 0x6A82
	SW_ERR_NOT_ENOUGH_MEMORY         StatusWord = 0x6A84
	SW_ERR_INCORRECT_PARAMS_P1P2     StatusWord = 0x6A86
	SW_ERR_REF_DATA_NOT_FOUND        StatusWord = 0x6A88
	SW_ERR_WRONG_P1P2                StatusWord = 0x6B00
	SW_ERR_INS_INVALID               StatusWord = 0x6D00
	SW_ERR_CLA_NOT_SUPPORTED         StatusWord = 0x6E00
	SW_ERR_UNKNOWN                   StatusWord = 0x6F00
)

var swDescriptions = map[StatusWord]string{
	SW_NO_ERROR:                      "No error",
	SW_WARN_NO_INFO:                  "Warning: no information given",
	SW_WARN_FILE_DEACTIVATED:         "Warning: selected file or application is locked",
	SW_WARN_NV_CHANGED_NO_INFO:       "Warning: NV memory changed, no information given",
	SW_ERR_MEMORY_FAILURE:            "Execution Error: memory failure",
	SW_ERR_WRONG_LENGTH:              "Wrong length",
	SW_ERR_LOGICAL_CHANNEL_NOT_SUPP:  "Logical channel not supported or not open",
	SW_ERR_SECURE_MESSAGING_NOT_SUPP: "Secure messaging not supported",
	SW_ERR_SECURITY_STATUS_NOT_SAT:   "Security status not satisfied",
	SW_ERR_COND_OF_USE_NOT_SAT:       "Conditions of use not satisfied",
	SW_ERR_INCORRECT_PARAMS_DATA:     "Incorrect parameters in the data field",
	SW_ERR_FUNC_NOT_SUPPORTED:        "Function not supported",
	SW_ERR_FILE_NOT_FOUND:            "File or application not found",
	SW_ERR_NOT_ENOUGH_MEMORY:         "Not enough memory space",
	SW_ERR_INCORRECT_PARAMS_P1P2:     "Incorrect parameters P1-P2",
	SW_ERR_REF_DATA_NOT_FOUND:        "Referenced data not found",
	SW_ERR_WRONG_P1P2:                "Wrong parameters P1-P2",
	SW_ERR_INS_INVALID:               "Instruction code not supported or invalid",
	SW_ERR_CLA_NOT_SUPPORTED:         "Class not supported",
	SW_ERR_UNKNOWN:                   "No precise diagnosis",
}

// StatusError is returned when a logical exchange ends on a status other than success.
type StatusError struct {
	Status StatusWord
}

func (e *StatusError) Error() string {
	return "card returned " + e.Status.Verbose()
}
