package action

import (
	"fmt"

	"github.com/vk/calcgrid/internal/codecompiler"
	"github.com/vk/calcgrid/internal/model"
	"github.com/zclconf/go-cty/cty"
)

func compoundAction(p *Pipeline, m *model.Model, data *model.ActionData) *model.ActionResult {
	result := &model.ActionResult{}
	for _, child := range data.Actions {
		childResult := p.run(m, child)
		result.ChildActionResults = append(result.ChildActionResults, childResult)
		if !childResult.ActionDone {
			result.ErrorMsg = childResult.ErrorMsg
			return result
		}
	}
	result.ActionDone = true
	return result
}

func createMemberAction(_ *Pipeline, m *model.Model, data *model.ActionData) *model.ActionResult {
	var parent model.Parent
	if data.ModelIsParent {
		parent = m
	} else if data.ParentID != "" {
		parent = m.GetMutableParent(data.ParentID)
	}
	if parent == nil {
		return model.Failed("Parent not found for created member")
	}
	if data.CreateData == nil {
		return model.Failed("Missing member data for created member")
	}
	return createMember(m, parent, data.CreateData)
}

// createMember builds a member and its children. The generated id is written
// back into mj so a replay of the same action creates the same ids.
func createMember(m *model.Model, parent model.Parent, mj *model.MemberJSON) *model.ActionResult {
	if err := codecompiler.ValidateMemberName(mj.Name); err != nil {
		return model.Failed(err.Error())
	}

	var member model.Member
	created := true
	if cfg, ok := m.Types().Lookup(mj.Type); ok {
		var err error
		if member, err = cfg.Create(m, mj); err != nil {
			return model.Failed(fmt.Sprintf("Error creating member %s: %v", mj.Name, err))
		}
	} else {
		em := model.NewErrorMember(m, mj)
		em.SetError(m, fmt.Errorf("Member type not found: %s", mj.Type))
		member = em
		created = false
	}
	mj.SpecialCaseIDValue = member.ID()

	m.RegisterMember(member)
	if err := m.AttachMember(parent, member); err != nil {
		m.UnregisterMember(member)
		return model.Failed(err.Error())
	}

	result := &model.ActionResult{
		Member:                  member,
		Event:                   model.EventCreated,
		UpdateModelDependencies: true,
	}
	if c, ok := member.(model.Codeable); ok && c.HasCode() {
		result.RecalculateMember = true
	} else {
		result.RecalculateDependsOnMembers = true
	}

	if container, ok := member.(model.Parent); ok && created && mj.Children != nil {
		for _, childJSON := range mj.Children.Members() {
			childResult := createMember(m, container, childJSON)
			result.ChildActionResults = append(result.ChildActionResults, childResult)
			if !childResult.ActionDone {
				result.ErrorMsg = childResult.ErrorMsg
				return result
			}
		}
	}

	result.ActionDone = true
	return result
}

func deleteMemberAction(_ *Pipeline, m *model.Model, data *model.ActionData) *model.ActionResult {
	member := m.LookupMemberByID(data.MemberID)
	if member == nil {
		return model.Failed("Member not found for delete member")
	}
	result := deleteMember(m, member)
	if parent := m.GetMutableParent(member.ParentID()); parent != nil {
		parent.RemoveChild(m, member)
	}
	return result
}

// deleteMember removes member and its descendants, children first.
func deleteMember(m *model.Model, member model.Member) *model.ActionResult {
	result := &model.ActionResult{
		Member:                  member,
		Event:                   model.EventDeleted,
		UpdateModelDependencies: true,
	}
	if container, ok := member.(model.Parent); ok {
		for _, id := range container.ChildMap().IDs() {
			if child := m.LookupMemberByID(id); child != nil {
				result.ChildActionResults = append(result.ChildActionResults, deleteMember(m, child))
			}
		}
	}
	m.DeleteMember(member)
	result.ActionDone = true
	return result
}

// promiseHolder is implemented by members that can wait on a promise.
type promiseHolder interface {
	PendingPromiseMatches(id string) bool
}

func updateDataAction(_ *Pipeline, m *model.Model, data *model.ActionData) *model.ActionResult {
	current := m.LookupMemberByID(data.MemberID)
	if current == nil {
		return model.Failed("Member not found for update member data")
	}

	resolved := false
	if data.SourcePromise != "" {
		holder, ok := current.(promiseHolder)
		if !ok || !holder.PendingPromiseMatches(data.SourcePromise) {
			// Superseded.
			return &model.ActionResult{ActionDone: true, Member: current}
		}
		resolved = true
	}

	codeable, isCodeable := current.(model.Codeable)
	if !resolved && (!isCodeable || !codeable.SetDataOK()) {
		return model.Failed("Can not set data on member: " + current.FullName(m))
	}

	member := m.GetMutableMember(data.MemberID)
	result := &model.ActionResult{
		ActionDone:                  true,
		Member:                      member,
		Event:                       model.EventUpdated,
		RecalculateDependsOnMembers: true,
	}

	if c, ok := member.(model.Codeable); ok {
		if len(c.DependsOn()) > 0 {
			result.UpdateMemberDependencies = true
		}
		if !resolved {
			c.ClearCode(m)
		}
		applyData(m, member, c.ApplyValue, data)
		return result
	}
	applyData(m, member, func(m *model.Model, v cty.Value) { member.SetData(m, v) }, data)
	return result
}

func applyData(m *model.Model, member model.Member, apply func(*model.Model, cty.Value), data *model.ActionData) {
	switch {
	case data.DataError != nil:
		member.SetError(m, data.DataError)
	case data.InvalidValue:
		member.SetResultInvalid(m)
	default:
		v := data.Data
		if v == cty.NilVal {
			v = cty.NullVal(cty.DynamicPseudoType)
		}
		apply(m, v)
	}
}

func updateCodeAction(p *Pipeline, m *model.Model, data *model.ActionData) *model.ActionResult {
	current := m.LookupMemberByID(data.MemberID)
	if current == nil {
		return model.Failed("Member not found for update member code")
	}
	c, ok := current.(model.Codeable)
	if !ok || !c.SetCodeOK() {
		return model.Failed("Can not set code on member: " + current.FullName(m))
	}

	if data.FunctionBody == "" && data.SupplementalCode == "" && c.SetDataOK() {
		return updateDataAction(p, m, &model.ActionData{
			Action:   model.ActionUpdateData,
			MemberID: data.MemberID,
			Data:     c.DefaultData(),
		})
	}

	member := m.GetMutableMember(data.MemberID)
	member.(model.Codeable).ApplyCode(data.ArgList, data.FunctionBody, data.SupplementalCode)
	return &model.ActionResult{
		ActionDone:               true,
		Member:                   member,
		Event:                    model.EventUpdated,
		UpdateMemberDependencies: true,
		RecalculateMember:        true,
	}
}

func updateFolderFunctionAction(_ *Pipeline, m *model.Model, data *model.ActionData) *model.ActionResult {
	current := m.LookupMemberByID(data.MemberID)
	if current == nil {
		return model.Failed("Member not found for update member code")
	}
	if _, ok := current.(*model.FolderFunction); !ok {
		return model.Failed("Member is not a folder function: " + current.FullName(m))
	}

	ff := m.GetMutableMember(data.MemberID).(*model.FolderFunction)
	ff.SetArgList(data.ArgList)
	ff.SetReturnValue(data.ReturnValue)
	return &model.ActionResult{
		ActionDone:        true,
		Member:            ff,
		Event:             model.EventUpdated,
		RecalculateMember: true,
	}
}

// fieldSetter is implemented by members with internal settings.
type fieldSetter interface {
	SetInternalField(name string, v any) error
}

func setFieldAction(_ *Pipeline, m *model.Model, data *model.ActionData) *model.ActionResult {
	current := m.LookupMemberByID(data.MemberID)
	if current == nil {
		return model.Failed("Member not found for set field")
	}
	if _, ok := current.(fieldSetter); !ok {
		return model.Failed("Field can not be set: " + data.FieldName)
	}

	member := m.GetMutableMember(data.MemberID)
	if err := member.(fieldSetter).SetInternalField(data.FieldName, data.FieldValue); err != nil {
		return model.Failed(err.Error())
	}
	return &model.ActionResult{
		ActionDone:        true,
		Member:            member,
		Event:             model.EventUpdated,
		RecalculateMember: true,
	}
}
