package registry

import (
	"github.com/dukex/conduit/pkg/nodes/conditional"
	"github.com/dukex/conduit/pkg/nodes/delay"
	"github.com/dukex/conduit/pkg/nodes/filter"
	"github.com/dukex/conduit/pkg/nodes/httprequest"
	"github.com/dukex/conduit/pkg/nodes/log"
	"github.com/dukex/conduit/pkg/nodes/loop"
	"github.com/dukex/conduit/pkg/nodes/mapper"
	"github.com/dukex/conduit/pkg/nodes/merge"
	"github.com/dukex/conduit/pkg/nodes/notify"
	"github.com/dukex/conduit/pkg/nodes/transform"
	"github.com/dukex/conduit/pkg/nodes/validator"
	"github.com/dukex/conduit/pkg/nodes/webhook"
	"github.com/dukex/conduit/pkg/protocol"
)

// RegisterDefaultNodes registers all built-in node factories with the registry.
func (r *Registry) RegisterDefaultNodes(deps protocol.Dependencies) {
	// connectors
	r.RegisterNode(webhook.NewWebhookNodeFactory())
	r.RegisterNode(httprequest.NewHTTPRequestNodeFactory(deps))

	// transformers
	r.RegisterNode(transform.NewTransformNodeFactory())
	r.RegisterNode(filter.NewFilterNodeFactory())
	r.RegisterNode(mapper.NewMapperNodeFactory())
	r.RegisterNode(validator.NewValidatorNodeFactory())

	// logic
	r.RegisterNode(conditional.NewConditionalNodeFactory())
	r.RegisterNode(loop.NewLoopNodeFactory())
	r.RegisterNode(delay.NewDelayNodeFactory())
	r.RegisterNode(merge.NewMergeNodeFactory())

	// actions
	r.RegisterNode(log.NewLogNodeFactory(deps))
	r.RegisterNode(notify.NewNotifyNodeFactory(deps))
}
