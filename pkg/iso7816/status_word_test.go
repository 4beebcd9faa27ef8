package iso7816

import (
	"errors"
	"strings"
	"testing"
)

func TestStatusWord_Dynamic(t *testing.T) {
	tests := []struct {
		sw        StatusWord
		isTrig    bool
		isCounter bool
	}{
		{NewStatusWord(0x62, 0x02), true, false},
		{NewStatusWord(0x62, 0x80), true, false},
		{NewStatusWord(0x64, 0x10), true, false},
		{NewStatusWord(0x62, 0x01), false, false},
		{NewStatusWord(0x62, 0x81), false, false},
		{NewStatusWord(0x63, 0xC0), false, true},
		{NewStatusWord(0x63, 0xCF), false, true},
		{NewStatusWord(0x63, 0x81), false, false},
	}

	for _, tt := range tests {
		if got := tt.sw.IsTriggeringByCard(); got != tt.isTrig {
			t.Errorf("SW %s IsTriggeringByCard = %v, want %v", tt.sw, got, tt.isTrig)
		}
		if got := tt.sw.IsCounter(); got != tt.isCounter {
			t.Errorf("SW %s IsCounter = %v, want %v", tt.sw, got, tt.isCounter)
		}
	}
}

func TestStatusWord_Classification(t *testing.T) {
	tests := []struct {
		sw        StatusWord
		isSuccess bool
		isWarning bool
		isError   bool
	}{
		{SW_NO_ERROR, true, false, false},
		{NewStatusWord(0x61, 0x10), true, false, false},
		{SW_WARN_FILE_DEACTIVATED, false, true, false},
		{NewStatusWord(0x63, 0xC2), false, true, false},
		{SW_ERR_WRONG_LENGTH, false, false, true},
		{SW_ERR_FILE_NOT_FOUND, false, false, true},
	}

	for _, tt := range tests {
		if got := tt.sw.IsSuccess(); got != tt.isSuccess {
			t.Errorf("SW %s IsSuccess = %v, want %v", tt.sw, got, tt.isSuccess)
		}
		if got := tt.sw.IsWarning(); got != tt.isWarning {
			t.Errorf("SW %s IsWarning = %v, want %v", tt.sw, got, tt.isWarning)
		}
		if got := tt.sw.IsError(); got != tt.isError {
			t.Errorf("SW %s IsError = %v, want %v", tt.sw, got, tt.isError)
		}
	}
}

func TestStatusWord_Verbose(t *testing.T) {
	tests := []struct {
		sw       StatusWord
		contains string
	}{
		{NewStatusWord(0x62, 0x10), "Card expects query of 16 bytes"},
		{NewStatusWord(0x63, 0xC3), "counter = 3"},
		{NewStatusWord(0x61, 0x20), "32 bytes available"},
		{NewStatusWord(0x6C, 0x05), "correct Le is 5"},
		{SW_ERR_FILE_NOT_FOUND, "[6A82] File or application not found"},
		{NewStatusWord(0x69, 0x99), "[6999] Checking Error: Command not allowed"},
		{NewStatusWord(0x12, 0x34), "Unknown Status"},
	}

	for _, tt := range tests {
		got := tt.sw.Verbose()
		if !strings.Contains(got, tt.contains) {
			t.Errorf("Verbose(%s) = %q; want containing %q", tt.sw, got, tt.contains)
		}
	}
}

func TestStatusError(t *testing.T) {
	var err error = &StatusError{Status: SW_ERR_SECURITY_STATUS_NOT_SAT}
	var se *StatusError
	if !errors.As(err, &se) || se.Status != 0x6982 {
		t.Fatalf("errors.As failed on %v", err)
	}
	if !strings.Contains(err.Error(), "6982") {
		t.Errorf("Error() = %q", err.Error())
	}
}
