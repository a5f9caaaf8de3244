package protocol

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     *Request
		wantErr bool
		checkFn func(t *testing.T, output string)
	}{
		{
			name: "valid fib request",
			req: &Request{
				Protocol:    1,
				TaskID:      "task-123",
				ProgramID:   "fib_input_initial",
				TaskType:    "proof_hash",
				InputIndex:  2,
				Input:       map[string]uint32{"n": 10, "init_a": 1, "init_b": 1},
				Environment: "beta",
				ClientID:    "client-1",
			},
			checkFn: func(t *testing.T, output string) {
				for _, want := range []string{
					`"protocol":1`,
					`"task_id":"task-123"`,
					`"input_index":2`,
					`"init_a":1`,
					`"client_id":"client-1"`,
				} {
					if !strings.Contains(output, want) {
						t.Errorf("missing %s in %s", want, output)
					}
				}
			},
		},
		{
			name: "unsupported protocol version",
			req: &Request{
				Protocol: 2,
				TaskID:   "test",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := EncodeRequest(&buf, tt.req)

			if (err != nil) != tt.wantErr {
				t.Fatalf("EncodeRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, buf.String())
			}
		})
	}
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		check   func(t *testing.T, resp *Response)
	}{
		{
			name:  "ok with proof",
			input: `{"status":"ok","proof":"AQID"}`,
			check: func(t *testing.T, resp *Response) {
				if !bytes.Equal(resp.Proof, []byte{1, 2, 3}) {
					t.Errorf("unexpected proof bytes %v", resp.Proof)
				}
			},
		},
		{
			name:  "guest failure",
			input: `{"status":"error","error_kind":"guest_program","error":"exit 1","logs":[{"level":"warn","message":"overflow"}]}`,
			check: func(t *testing.T, resp *Response) {
				if resp.ErrorKind != ErrorKindGuestProgram {
					t.Errorf("error_kind = %q", resp.ErrorKind)
				}
				if len(resp.Logs) != 1 {
					t.Errorf("expected one log entry, got %d", len(resp.Logs))
				}
			},
		},
		{name: "ok without proof", input: `{"status":"ok"}`, wantErr: true},
		{name: "error without message", input: `{"status":"error"}`, wantErr: true},
		{name: "missing status", input: `{"proof":"AQID"}`, wantErr: true},
		{name: "bad status", input: `{"status":"maybe"}`, wantErr: true},
		{name: "unknown field", input: `{"status":"ok","proof":"AQID","extra":true}`, wantErr: true},
		{name: "not json", input: `proof!`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := DecodeResponse(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && resp != nil {
				tt.check(t, resp)
			}
		})
	}
}

func TestDecodeResponseLenient(t *testing.T) {
	resp, raw, err := DecodeResponseLenient(strings.NewReader(`{"status":"ok","proof":"AQID","debug":"ignored"}`))
	if err != nil {
		t.Fatalf("DecodeResponseLenient() error = %v", err)
	}
	if resp.Status != "ok" || len(raw) == 0 {
		t.Fatalf("unexpected response %+v raw=%q", resp, raw)
	}

	_, raw, err = DecodeResponseLenient(strings.NewReader(`panic: oh no`))
	if err == nil {
		t.Fatal("expected error for non-JSON output")
	}
	if string(raw) != "panic: oh no" {
		t.Fatalf("expected raw bytes back, got %q", raw)
	}

	if _, _, err := DecodeResponseLenient(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty output")
	}
}
