package errors

import (
	"fmt"
	"testing"
)

func TestClassifyExceptionError(t *testing.T) {
	ex := NewExceptionError(0x03, 0x02)
	c := Classify(ex)
	if c.Code != IllegalDataAddress {
		t.Errorf("expected IllegalDataAddress, got %s", c.Code)
	}
}

func TestClassifyConfigErr(t *testing.T) {
	c := Classify(NewConfigErr("32-bit read would normalize to a negative address"))
	if c.Code != ConfigError {
		t.Errorf("expected ConfigError, got %s", c.Code)
	}
}

func TestClassifyPortBusy(t *testing.T) {
	c := Classify(NewPortBusyErr("port faulted, retry_at not yet reached"))
	if c.Code != PortBusy {
		t.Errorf("expected PortBusy, got %s", c.Code)
	}
}

func TestClassifyUnknown(t *testing.T) {
	c := Classify(fmt.Errorf("something odd happened"))
	if c.Code != UnknownError {
		t.Errorf("expected UnknownError, got %s", c.Code)
	}
}

func TestClassifyNilIsOK(t *testing.T) {
	c := Classify(nil)
	if !c.Ok() || c.Code != OK {
		t.Errorf("expected OK, got %s", c.Code)
	}
}

func TestClassifyKindGrouping(t *testing.T) {
	cases := map[Code]Kind{
		Timeout:            KindLink,
		CRCError:           KindLink,
		IllegalFunction:    KindProtocol,
		SlaveDeviceFailure: KindProtocol,
		PortBusy:           KindPort,
		ConfigError:        KindConfig,
		UnknownError:       KindUnknown,
	}
	for code, want := range cases {
		if got := ClassifyKind(code); got != want {
			t.Errorf("ClassifyKind(%s) = %v, want %v", code, got, want)
		}
	}
}
