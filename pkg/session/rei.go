// Package session holds the request state a rule runs against and the
// mapping from session variables such as $objPath to that state.
package session

import "github.com/sandrolain/goirl/pkg/msi"

// UserInfo identifies a user.
type UserInfo struct {
	UserName string
	RodsZone string
	UserType string
}

// DataObjInfo describes the data object a request operates on.
type DataObjInfo struct {
	ObjPath   string
	RescName  string
	DataType  string
	FilePath  string
	DataOwner string
	Chksum    string
	DataSize  int64
	DataID    int64
	ReplNum   int64
}

// DataObjInp is the client input of a data object request.
type DataObjInp struct {
	ObjPath    string
	CreateMode int64
	OpenFlags  int64
	CondInput  *msi.KeyValPair
}

// CollInfo describes a collection.
type CollInfo struct {
	CollName string
	CollID   int64
}

// RuleExecInfo is the mutable request state shared by a rule, the rules it
// calls and the micro-services they run.
type RuleExecInfo struct {
	Status    int
	StatusStr string

	ClientUser *UserInfo
	ProxyUser  *UserInfo
	DataObj    *DataObjInfo
	DataObjInp *DataObjInp
	Coll       *CollInfo
	RescName   string
	CondInput  *msi.KeyValPair

	// Params are the labelled parameters of the request. ruleExecOut
	// collects the output of writeLine.
	Params *msi.ParamArray
}

// Clone returns a copy that shares nothing mutable with r.
func (r *RuleExecInfo) Clone() *RuleExecInfo {
	if r == nil {
		return nil
	}
	c := *r
	if r.ClientUser != nil {
		u := *r.ClientUser
		c.ClientUser = &u
	}
	if r.ProxyUser != nil {
		u := *r.ProxyUser
		c.ProxyUser = &u
	}
	if r.DataObj != nil {
		d := *r.DataObj
		c.DataObj = &d
	}
	if r.DataObjInp != nil {
		d := *r.DataObjInp
		d.CondInput = r.DataObjInp.CondInput.Clone()
		c.DataObjInp = &d
	}
	if r.Coll != nil {
		cl := *r.Coll
		c.Coll = &cl
	}
	c.CondInput = r.CondInput.Clone()
	c.Params = r.Params.Clone()
	return &c
}

// Restore overwrites r with a copy of saved.
func (r *RuleExecInfo) Restore(saved *RuleExecInfo) {
	*r = *saved.Clone()
}

// ExecOut returns the ruleExecOut buffers, creating them when missing.
func (r *RuleExecInfo) ExecOut() *msi.ExecCmdOut {
	if r.Params == nil {
		r.Params = &msi.ParamArray{}
	}
	if p, ok := r.Params.Get("ruleExecOut"); ok {
		if out, ok := p.InOut.(*msi.ExecCmdOut); ok {
			return out
		}
	}
	out := &msi.ExecCmdOut{}
	r.Params.Add("ruleExecOut", msi.ExecCmdOutMsT, out)
	return out
}
