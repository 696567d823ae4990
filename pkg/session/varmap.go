package session

import (
	"sort"

	"github.com/sandrolain/goirl/pkg/types"
)

// Accessor reads and writes one candidate location of a session variable.
// Get returns NULL_VALUE_ERR when the location is absent from the
// request, so that the next candidate is tried. Set is nil for read only
// locations.
type Accessor struct {
	Type *types.ExprType
	Get  func(rei *RuleExecInfo, r *types.Region) (*types.Value, error)
	Set  func(rei *RuleExecInfo, v *types.Value) error
}

// VarMap maps session variable names, without the $, to their candidate
// locations in the order they are tried.
type VarMap struct {
	vars map[string][]Accessor
}

// NewVarMap returns an empty map.
func NewVarMap() *VarMap {
	return &VarMap{vars: make(map[string][]Accessor)}
}

// Define appends a candidate location for name.
func (m *VarMap) Define(name string, a Accessor) {
	m.vars[name] = append(m.vars[name], a)
}

// Names returns the defined names in sorted order.
func (m *VarMap) Names() []string {
	names := make([]string, 0, len(m.vars))
	for n := range m.vars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Type returns the type of the first candidate of name.
func (m *VarMap) Type(name string) (*types.ExprType, bool) {
	cands := m.vars[trim(name)]
	if len(cands) == 0 {
		return nil, false
	}
	return cands[0].Type, true
}

func trim(name string) string {
	if len(name) > 0 && name[0] == '$' {
		return name[1:]
	}
	return name
}

// Get reads name from the first candidate holding a value.
func (m *VarMap) Get(rei *RuleExecInfo, name string, r *types.Region) (*types.Value, error) {
	cands, ok := m.vars[trim(name)]
	if !ok {
		return nil, types.Errorf(types.UndefinedVariableMapErr, "undefined session variable $%s", trim(name))
	}
	if rei == nil {
		return nil, types.Errorf(types.NullValueErr, "session variable $%s: no request state", trim(name))
	}
	for _, a := range cands {
		v, err := a.Get(rei, r)
		if types.IsCode(err, types.NullValueErr) {
			continue
		}
		return v, err
	}
	return nil, types.Errorf(types.NullValueErr, "session variable $%s has no value", trim(name))
}

// Set writes name into the first writable candidate holding a value.
func (m *VarMap) Set(rei *RuleExecInfo, name string, v *types.Value) error {
	cands, ok := m.vars[trim(name)]
	if !ok {
		return types.Errorf(types.UndefinedVariableMapErr, "undefined session variable $%s", trim(name))
	}
	if rei == nil {
		return types.Errorf(types.NullValueErr, "session variable $%s: no request state", trim(name))
	}
	for _, a := range cands {
		if a.Set == nil {
			continue
		}
		err := a.Set(rei, v)
		if types.IsCode(err, types.NullValueErr) {
			continue
		}
		return err
	}
	return types.Errorf(types.ReUnableToWriteSessionVar, "unable to write session variable $%s", trim(name))
}

var (
	stringType = types.NewSimpleType(types.TString)
	intType    = types.NewSimpleType(types.TInt)
)

func null(name string) error {
	return types.Errorf(types.NullValueErr, "%s is not set", name)
}

func expect(v *types.Value, kind types.ValueKind, name string) error {
	if v.Kind != kind && !(kind == types.KindString && v.Kind == types.KindPath) {
		return types.Errorf(types.ReDynamicTypeError, "cannot assign %s to $%s of type %s", v.Kind, name, kind)
	}
	return nil
}

// str defines a string location reached through get, which returns nil
// when the enclosing structure is absent.
func (m *VarMap) str(name string, get func(*RuleExecInfo) *string) {
	m.Define(name, Accessor{
		Type: stringType,
		Get: func(rei *RuleExecInfo, r *types.Region) (*types.Value, error) {
			p := get(rei)
			if p == nil {
				return nil, null(name)
			}
			return r.NewString(*p), nil
		},
		Set: func(rei *RuleExecInfo, v *types.Value) error {
			p := get(rei)
			if p == nil {
				return null(name)
			}
			if err := expect(v, types.KindString, name); err != nil {
				return err
			}
			*p = v.Str
			return nil
		},
	})
}

func (m *VarMap) integer(name string, get func(*RuleExecInfo) *int64) {
	m.Define(name, Accessor{
		Type: intType,
		Get: func(rei *RuleExecInfo, r *types.Region) (*types.Value, error) {
			p := get(rei)
			if p == nil {
				return nil, null(name)
			}
			return r.NewInt(*p), nil
		},
		Set: func(rei *RuleExecInfo, v *types.Value) error {
			p := get(rei)
			if p == nil {
				return null(name)
			}
			if err := expect(v, types.KindInt, name); err != nil {
				return err
			}
			*p = v.Int
			return nil
		},
	})
}

// DefaultVarMap returns the standard session variables.
func DefaultVarMap() *VarMap {
	m := NewVarMap()
	client := func(rei *RuleExecInfo) *UserInfo { return rei.ClientUser }
	proxy := func(rei *RuleExecInfo) *UserInfo { return rei.ProxyUser }
	for _, u := range []struct {
		suffix string
		user   func(*RuleExecInfo) *UserInfo
	}{{"Client", client}, {"Proxy", proxy}} {
		user := u.user
		m.str("userName"+u.suffix, func(rei *RuleExecInfo) *string {
			if x := user(rei); x != nil {
				return &x.UserName
			}
			return nil
		})
		m.str("rodsZone"+u.suffix, func(rei *RuleExecInfo) *string {
			if x := user(rei); x != nil {
				return &x.RodsZone
			}
			return nil
		})
		m.str("userType"+u.suffix, func(rei *RuleExecInfo) *string {
			if x := user(rei); x != nil {
				return &x.UserType
			}
			return nil
		})
	}

	dataStr := func(name string, field func(*DataObjInfo) *string) {
		m.str(name, func(rei *RuleExecInfo) *string {
			if rei.DataObj == nil {
				return nil
			}
			return field(rei.DataObj)
		})
	}
	dataInt := func(name string, field func(*DataObjInfo) *int64) {
		m.integer(name, func(rei *RuleExecInfo) *int64 {
			if rei.DataObj == nil {
				return nil
			}
			return field(rei.DataObj)
		})
	}
	dataStr("objPath", func(d *DataObjInfo) *string { return &d.ObjPath })
	m.str("objPath", func(rei *RuleExecInfo) *string {
		if rei.DataObjInp == nil {
			return nil
		}
		return &rei.DataObjInp.ObjPath
	})
	dataStr("rescName", func(d *DataObjInfo) *string { return &d.RescName })
	m.str("rescName", func(rei *RuleExecInfo) *string { return &rei.RescName })
	dataStr("dataType", func(d *DataObjInfo) *string { return &d.DataType })
	dataStr("filePath", func(d *DataObjInfo) *string { return &d.FilePath })
	dataStr("dataOwner", func(d *DataObjInfo) *string { return &d.DataOwner })
	dataStr("chksum", func(d *DataObjInfo) *string { return &d.Chksum })
	dataInt("dataSize", func(d *DataObjInfo) *int64 { return &d.DataSize })
	dataInt("dataId", func(d *DataObjInfo) *int64 { return &d.DataID })
	dataInt("replNum", func(d *DataObjInfo) *int64 { return &d.ReplNum })

	m.integer("createMode", func(rei *RuleExecInfo) *int64 {
		if rei.DataObjInp == nil {
			return nil
		}
		return &rei.DataObjInp.CreateMode
	})
	m.integer("openFlags", func(rei *RuleExecInfo) *int64 {
		if rei.DataObjInp == nil {
			return nil
		}
		return &rei.DataObjInp.OpenFlags
	})

	m.str("collName", func(rei *RuleExecInfo) *string {
		if rei.Coll == nil {
			return nil
		}
		return &rei.Coll.CollName
	})
	m.integer("collId", func(rei *RuleExecInfo) *int64 {
		if rei.Coll == nil {
			return nil
		}
		return &rei.Coll.CollID
	})

	m.Define("status", Accessor{
		Type: intType,
		Get: func(rei *RuleExecInfo, r *types.Region) (*types.Value, error) {
			return r.NewInt(int64(rei.Status)), nil
		},
		Set: func(rei *RuleExecInfo, v *types.Value) error {
			if err := expect(v, types.KindInt, "status"); err != nil {
				return err
			}
			rei.Status = int(v.Int)
			return nil
		},
	})
	m.str("statusStr", func(rei *RuleExecInfo) *string { return &rei.StatusStr })

	m.Define("KVPairs", Accessor{
		Type: types.NewIrodsType("KeyValPair_PI"),
		Get: func(rei *RuleExecInfo, r *types.Region) (*types.Value, error) {
			if rei.CondInput == nil {
				return nil, null("KVPairs")
			}
			return r.NewIrods("KeyValPair_PI", rei.CondInput), nil
		},
	})
	return m
}
