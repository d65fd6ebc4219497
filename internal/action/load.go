package action

import (
	"context"

	"github.com/vk/calcgrid/internal/model"
)

// NewEnvironment returns an environment with the built-in member types, the
// given globals and a new pipeline.
func NewEnvironment(globals model.GlobalResolver) *model.Environment {
	return &model.Environment{
		Types:   model.DefaultTypes(),
		Globals: globals,
		Runner:  New(),
	}
}

// LoadModel builds a locked model from its saved form. The model is returned
// even when loading fails, so the caller can inspect what was created.
func LoadModel(ctx context.Context, env *model.Environment, link *model.RunContextLink, doc *model.ModelJSON) (*model.Model, *model.ActionResult) {
	m := model.NewModel(env, link)
	if doc.Name != "" {
		m.SetName(doc.Name)
	}

	load := &model.ActionData{Action: model.ActionCompound}
	if doc.Children != nil {
		for _, child := range doc.Children.Members() {
			load.Actions = append(load.Actions, &model.ActionData{
				Action:        model.ActionCreateMember,
				ModelIsParent: true,
				CreateData:    child.Clone(),
			})
		}
	}
	return m, env.Runner.Do(ctx, m, load)
}

// NewEmptyModel builds a locked model holding only the root folder.
func NewEmptyModel(ctx context.Context, env *model.Environment, link *model.RunContextLink) (*model.Model, *model.ActionResult) {
	return LoadModel(ctx, env, link, model.EmptyModelJSON())
}
