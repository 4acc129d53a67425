package pkthandler

// RejectCode is one of the three reject categories this handler emits.
type RejectCode string

const (
	CodeBadRequest         RejectCode = "F00"
	CodeInsufficientAmount RejectCode = "F06"
	CodeInternalError      RejectCode = "T00"
)

// Packet is the inbound payment unit at the BLS boundary.
type Packet struct {
	Amount        string
	Destination   string
	Data          []byte
	SourceAccount string
}

// Response is the outcome of handling one Packet: exactly one of the
// accept or reject shapes is populated, collapsing the
// accept/reject(code, msg)/degrade-to-base tagged result into this
// single struct at the top of the pipeline.
type Response struct {
	Accept bool

	// Accept fields.
	Fulfillment []byte
	Data        []byte
	Metadata    map[string]interface{}

	// Reject fields.
	Code    RejectCode
	Message string
}

// HTTPStatus maps a reject code onto its HTTP status family: 400 for
// bad request/insufficient payment, 500 for internal errors.
func (r *Response) HTTPStatus() int {
	if r.Accept {
		return 200
	}
	switch r.Code {
	case CodeBadRequest, CodeInsufficientAmount:
		return 400
	default:
		return 500
	}
}

func accept(fulfillment, data []byte, metadata map[string]interface{}) *Response {
	return &Response{Accept: true, Fulfillment: fulfillment, Data: data, Metadata: metadata}
}

func reject(code RejectCode, msg string) *Response {
	return &Response{Accept: false, Code: code, Message: msg}
}

func rejectMeta(code RejectCode, msg string, meta map[string]interface{}) *Response {
	r := reject(code, msg)
	r.Metadata = meta
	return r
}
