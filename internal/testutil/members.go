package testutil

import (
	"encoding/json"

	"github.com/vk/calcgrid/internal/model"
	"github.com/vk/calcgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// DataJSON describes a data member holding v.
func DataJSON(name string, v cty.Value) *model.MemberJSON {
	raw, err := value.ToJSON(v)
	if err != nil {
		panic(err)
	}
	return &model.MemberJSON{
		Name:   name,
		Type:   model.TypeDataMember,
		Fields: map[string]json.RawMessage{"data": raw},
	}
}

// FormulaJSON describes a data member computed by body.
func FormulaJSON(name, body string) *model.MemberJSON {
	return CodeJSON(model.TypeDataMember, name, nil, body, "")
}

// FunctionJSON describes a function member.
func FunctionJSON(name string, argList []string, body string) *model.MemberJSON {
	return CodeJSON(model.TypeFunctionMember, name, argList, body, "")
}

// CodeJSON describes any code member.
func CodeJSON(typeName, name string, argList []string, body, supplemental string) *model.MemberJSON {
	if argList == nil {
		argList = []string{}
	}
	return &model.MemberJSON{
		Name: name,
		Type: typeName,
		Fields: map[string]json.RawMessage{
			"argList":          mustJSON(argList),
			"functionBody":     mustJSON(body),
			"supplementalCode": mustJSON(supplemental),
		},
	}
}

// FolderJSON describes a folder with children.
func FolderJSON(name string, children ...*model.MemberJSON) *model.MemberJSON {
	return &model.MemberJSON{
		Name:     name,
		Type:     model.TypeFolder,
		Children: model.NewChildrenJSON(children...),
	}
}

// FolderFunctionJSON describes a folder function whose body folder holds
// children.
func FolderFunctionJSON(name string, argList []string, returnValue string, children ...*model.MemberJSON) *model.MemberJSON {
	return &model.MemberJSON{
		Name: name,
		Type: model.TypeFolderFunction,
		Fields: map[string]json.RawMessage{
			"argList":     mustJSON(argList),
			"returnValue": mustJSON(returnValue),
		},
		Children: model.NewChildrenJSON(FolderJSON(model.FolderFunctionBodyName, children...)),
	}
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
