package metrics

// Op identifies the kind of storage operation being measured.
type Op string

const (
	OpUpload   Op = "upload"
	OpDownload Op = "download"
	OpDelete   Op = "delete"
	OpList     Op = "list"
	OpHead     Op = "head"
	OpOther    Op = "other"
)

// Ops lists every operation type in stable report order.
var Ops = []Op{OpUpload, OpDownload, OpDelete, OpList, OpHead, OpOther}

const numOps = 6

var opIndex = map[Op]int{
	OpUpload:   0,
	OpDownload: 1,
	OpDelete:   2,
	OpList:     3,
	OpHead:     4,
	OpOther:    5,
}

// Valid reports whether o is a recognized operation type.
func (o Op) Valid() bool {
	_, ok := opIndex[o]
	return ok
}
