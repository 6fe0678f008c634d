package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"kota/internal/domain"
	"kota/internal/value"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultMaxParallelTools = 5

// ToolInvoker is the part of the tool registry the dispatcher needs.
type ToolInvoker interface {
	Definitions() []domain.ToolDefinition
	Invoke(ctx context.Context, name string, args value.Value) (value.Value, error)
}

// OpenAITools converts tool definitions to OpenAI function tools.
func OpenAITools(defs []domain.ToolDefinition) []openai.Tool {
	tools := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		params := d.Parameters
		if params.IsNull() {
			params = value.Object("type", "object", "properties", value.FromMap(nil))
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}

// Dispatcher runs model tool calls against the registry and turns each
// outcome into a tool message. Failures become message content, never
// errors, so the conversation can continue.
type Dispatcher struct {
	tools       ToolInvoker
	filter      *ToolFilter
	logger      *zap.Logger
	timeout     time.Duration
	maxParallel int
}

func NewDispatcher(tools ToolInvoker, filter *ToolFilter, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		tools:       tools,
		filter:      filter,
		logger:      logger,
		maxParallel: defaultMaxParallelTools,
	}
}

// SetTimeout bounds each tool call. Zero means no extra bound.
func (d *Dispatcher) SetTimeout(t time.Duration) {
	d.timeout = t
}

// SetFilter swaps the filter, for example after a skill is activated.
func (d *Dispatcher) SetFilter(f *ToolFilter) {
	d.filter = f
}

// Definitions returns the tool definitions that pass the filter.
func (d *Dispatcher) Definitions() []domain.ToolDefinition {
	return d.filter.FilterDefinitions(d.tools.Definitions())
}

// Tools returns the filtered definitions as OpenAI tools.
func (d *Dispatcher) Tools() []openai.Tool {
	return OpenAITools(d.Definitions())
}

// Dispatch executes a single tool call.
func (d *Dispatcher) Dispatch(ctx context.Context, call openai.ToolCall) openai.ChatCompletionMessage {
	name := call.Function.Name
	msg := openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		ToolCallID: call.ID,
		Name:       name,
	}

	content, err := d.execute(ctx, name, call.Function.Arguments)
	if err != nil {
		d.logger.Warn("tool call failed", zap.String("tool", name), zap.String("call_id", call.ID), zap.Error(err))
		msg.Content = fmt.Sprintf("Error executing tool %s: %s", name, err.Error())
		return msg
	}
	msg.Content = content
	return msg
}

// DispatchAll executes calls with bounded parallelism. Messages are
// returned in call order.
func (d *Dispatcher) DispatchAll(ctx context.Context, calls []openai.ToolCall) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(calls))
	var g errgroup.Group
	g.SetLimit(d.maxParallel)
	for i, call := range calls {
		g.Go(func() error {
			out[i] = d.Dispatch(ctx, call)
			return nil
		})
	}
	g.Wait()
	return out
}

func (d *Dispatcher) execute(ctx context.Context, name, rawArgs string) (string, error) {
	if !d.filter.IsAllowed(name) {
		return "", fmt.Errorf("tool %q is not enabled", name)
	}

	args := value.Null()
	if strings.TrimSpace(rawArgs) != "" {
		parsed, err := value.Parse([]byte(rawArgs))
		if err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		args = parsed
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	d.logger.Debug("executing tool", zap.String("tool", name), zap.String("args", rawArgs))
	result, err := d.tools.Invoke(ctx, name, args)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
