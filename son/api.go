package son

import (
	"github.com/spf13/afero"

	"github.com/StratifyLabs/son-go/record"
)

// API is a thin struct-of-closures mirroring the original C port's
// son_api_t vtable. It is not required to use the package — every field
// is just the corresponding package-level function or method bound to a
// value — but it gives callers migrating from the function-table calling
// convention (embedded scripting glue, dependency injection in cmd/sonctl)
// one value to pass around instead of an import.
type API struct {
	Create       func(fs afero.Fs, name string, stackSize int) (*Handle, error)
	CreateMsg    func(buf []byte, stackSize int) (*Handle, error)
	Open         func(fs afero.Fs, name string) (*Handle, error)
	OpenMsg      func(buf []byte) (*Handle, error)
	Append       func(fs afero.Fs, name string, stackSize int) (*Handle, error)
	Edit         func(fs afero.Fs, name string) (*Handle, error)
	EditMsg      func(buf []byte) (*Handle, error)
	Close        func(h *Handle) error
	OpenObj      func(h *Handle, key string) error
	CloseObj     func(h *Handle) error
	OpenArray    func(h *Handle, key string) error
	CloseArray   func(h *Handle) error
	OpenData     func(h *Handle, key string) error
	CloseData    func(h *Handle) error
	WriteStr     func(h *Handle, key, value string) error
	WriteNum     func(h *Handle, key string, value int32) error
	WriteUnum    func(h *Handle, key string, value uint32) error
	WriteFloat   func(h *Handle, key string, value float32) error
	WriteTrue    func(h *Handle, key string) error
	WriteFalse   func(h *Handle, key string) error
	WriteNull    func(h *Handle, key string) error
	WriteData    func(h *Handle, key string, value []byte) error
	ReadStr      func(h *Handle, access string, buf []byte) (int, error)
	ReadNum      func(h *Handle, access string) (int32, error)
	ReadUnum     func(h *Handle, access string) (uint32, error)
	ReadFloat    func(h *Handle, access string) (float32, error)
	ReadData     func(h *Handle, access string, buf []byte) (int, error)
	ReadBool     func(h *Handle, access string) (bool, error)
	Seek         func(h *Handle, access string) (record.Kind, string, error)
	SeekNext     func(h *Handle, dir Direction) (record.Kind, string, error)
	EditFloat    func(h *Handle, access string, value float32) error
	EditNum      func(h *Handle, access string, value int32) error
	EditUnum     func(h *Handle, access string, value uint32) error
	EditStr      func(h *Handle, access, value string) error
	EditData     func(h *Handle, access string, value []byte) error
	EditBool     func(h *Handle, access string, value bool) error
	GetLastError func(h *Handle) ErrKind
}

// NewAPI returns the default API bound to this package's functions and
// methods.
func NewAPI() API {
	return API{
		Create:    Create,
		CreateMsg: CreateMessage,
		Open:      Open,
		OpenMsg:   OpenMessage,
		Append:    Append,
		Edit:      Edit,
		EditMsg:   EditMessage,
		Close:     func(h *Handle) error { return h.Close() },

		OpenObj:    func(h *Handle, key string) error { return h.OpenObj(key) },
		CloseObj:   func(h *Handle) error { return h.CloseObj() },
		OpenArray:  func(h *Handle, key string) error { return h.OpenArray(key) },
		CloseArray: func(h *Handle) error { return h.CloseArray() },
		OpenData:   func(h *Handle, key string) error { return h.OpenData(key) },
		CloseData:  func(h *Handle) error { return h.CloseData() },

		WriteStr:   func(h *Handle, key, value string) error { return h.WriteStr(key, value) },
		WriteNum:   func(h *Handle, key string, value int32) error { return h.WriteNum(key, value) },
		WriteUnum:  func(h *Handle, key string, value uint32) error { return h.WriteUnum(key, value) },
		WriteFloat: func(h *Handle, key string, value float32) error { return h.WriteFloat(key, value) },
		WriteTrue:  func(h *Handle, key string) error { return h.WriteTrue(key) },
		WriteFalse: func(h *Handle, key string) error { return h.WriteFalse(key) },
		WriteNull:  func(h *Handle, key string) error { return h.WriteNull(key) },
		WriteData:  func(h *Handle, key string, value []byte) error { return h.WriteData(key, value) },

		ReadStr:   func(h *Handle, access string, buf []byte) (int, error) { return h.ReadStr(access, buf) },
		ReadNum:   func(h *Handle, access string) (int32, error) { return h.ReadNum(access) },
		ReadUnum:  func(h *Handle, access string) (uint32, error) { return h.ReadUnum(access) },
		ReadFloat: func(h *Handle, access string) (float32, error) { return h.ReadFloat(access) },
		ReadData:  func(h *Handle, access string, buf []byte) (int, error) { return h.ReadData(access, buf) },
		ReadBool:  func(h *Handle, access string) (bool, error) { return h.ReadBool(access) },
		Seek:      func(h *Handle, access string) (record.Kind, string, error) { return h.Seek(access) },
		SeekNext:  func(h *Handle, dir Direction) (record.Kind, string, error) { return h.SeekNext(dir) },

		EditFloat: func(h *Handle, access string, value float32) error { return h.EditFloat(access, value) },
		EditNum:   func(h *Handle, access string, value int32) error { return h.EditNum(access, value) },
		EditUnum:  func(h *Handle, access string, value uint32) error { return h.EditUnum(access, value) },
		EditStr:   func(h *Handle, access, value string) error { return h.EditStr(access, value) },
		EditData:  func(h *Handle, access string, value []byte) error { return h.EditData(access, value) },
		EditBool:  func(h *Handle, access string, value bool) error { return h.EditBool(access, value) },

		GetLastError: func(h *Handle) ErrKind { return h.LastError() },
	}
}
