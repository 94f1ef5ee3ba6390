package mcp

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aulaverse/aulaverse/internal/game/action"
	"github.com/aulaverse/aulaverse/internal/game/apply"
	"github.com/aulaverse/aulaverse/internal/game/domain"
	"github.com/aulaverse/aulaverse/internal/game/market"
	"github.com/aulaverse/aulaverse/internal/game/service"
)

// generatorTimeout bounds tool calls that reach the narrative generator.
const generatorTimeout = 60 * time.Second

func registerEngineTools(mcpServer *sdk.Server, engine *service.Engine) {
	sdk.AddTool(mcpServer, actionPerformTool(), actionPerformHandler(engine))
	sdk.AddTool(mcpServer, choiceApplyTool(), choiceApplyHandler(engine))
	sdk.AddTool(mcpServer, universeForkTool(), universeForkHandler(engine))
	sdk.AddTool(mcpServer, characterGetTool(), characterGetHandler(engine))
	sdk.AddTool(mcpServer, universeGetTool(), universeGetHandler(engine))
	sdk.AddTool(mcpServer, multiverseGetTool(), multiverseGetHandler(engine))
	sdk.AddTool(mcpServer, evaluationSubmitTool(), evaluationSubmitHandler(engine))
	sdk.AddTool(mcpServer, characterEvaluateTool(), characterEvaluateHandler(engine))
	sdk.AddTool(mcpServer, missionListTool(), missionListHandler(engine))
	sdk.AddTool(mcpServer, missionStartTool(), missionStartHandler(engine))
}

func registerMarketTools(mcpServer *sdk.Server, engine *service.Engine, shop *market.Shop) {
	sdk.AddTool(mcpServer, marketListTool(), marketListHandler(engine))
	sdk.AddTool(mcpServer, marketBuyTool(), marketBuyHandler(shop))
	sdk.AddTool(mcpServer, inventoryUseTool(), inventoryUseHandler(shop))
}

// ActionPerformInput is the MCP input for performing a student action.
type ActionPerformInput struct {
	Student     string `json:"student" jsonschema:"student identifier"`
	UniverseID  string `json:"universe_id" jsonschema:"target universe id"`
	CharacterID string `json:"character_id" jsonschema:"acting character id"`
	Prompt      string `json:"prompt" jsonschema:"free-text action description"`
	ClassNumber int    `json:"class_number" jsonschema:"class session number"`
	ChangeType  string `json:"change_type,omitempty" jsonschema:"universe change type A-E, defaults to C"`
}

// ActionPerformResult is the MCP output for a performed action.
type ActionPerformResult struct {
	Event     domain.Event    `json:"event"`
	Decision  action.Decision `json:"decision"`
	Outcome   apply.Outcome   `json:"outcome"`
	Narrative string          `json:"narrative"`
}

func actionPerformTool() *sdk.Tool {
	return &sdk.Tool{
		Name:        "action_perform",
		Description: "Validates a student action, narrates it, and applies the resulting effects",
	}
}

func actionPerformHandler(engine *service.Engine) sdk.ToolHandlerFor[ActionPerformInput, ActionPerformResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, input ActionPerformInput) (*sdk.CallToolResult, ActionPerformResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, generatorTimeout)
		defer cancel()

		result, err := engine.Act(runCtx, service.ActionInput{
			Student:     input.Student,
			UniverseID:  input.UniverseID,
			CharacterID: input.CharacterID,
			Prompt:      input.Prompt,
			ClassNumber: input.ClassNumber,
			ChangeType:  input.ChangeType,
		})
		if err != nil {
			return nil, ActionPerformResult{}, fmt.Errorf("action perform failed: %w", err)
		}
		return nil, ActionPerformResult{
			Event:     result.Event,
			Decision:  result.Decision,
			Outcome:   result.Outcome,
			Narrative: result.Narrative,
		}, nil
	}
}

// ChoiceApplyInput is the MCP input for applying an offered choice.
type ChoiceApplyInput struct {
	CharacterID string `json:"character_id" jsonschema:"acting character id"`
	ChoiceText  string `json:"choice_text" jsonschema:"text of the selected choice"`
	Student     string `json:"student,omitempty" jsonschema:"student identifier"`
	UniverseID  string `json:"universe_id,omitempty" jsonschema:"universe id, defaults to the character's"`
	ClassNumber int    `json:"class_number,omitempty" jsonschema:"class session number"`
}

func choiceApplyTool() *sdk.Tool {
	return &sdk.Tool{
		Name:        "choice_apply",
		Description: "Replays a previously offered choice as a new narrated event",
	}
}

func choiceApplyHandler(engine *service.Engine) sdk.ToolHandlerFor[ChoiceApplyInput, ActionPerformResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, input ChoiceApplyInput) (*sdk.CallToolResult, ActionPerformResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, generatorTimeout)
		defer cancel()

		result, err := engine.ApplyChoice(runCtx, service.ChoiceInput{
			CharacterID: input.CharacterID,
			ChoiceText:  input.ChoiceText,
			Student:     input.Student,
			UniverseID:  input.UniverseID,
			ClassNumber: input.ClassNumber,
		})
		if err != nil {
			return nil, ActionPerformResult{}, fmt.Errorf("choice apply failed: %w", err)
		}
		return nil, ActionPerformResult{
			Event:     result.Event,
			Outcome:   result.Outcome,
			Narrative: result.Narrative,
		}, nil
	}
}

// UniverseForkInput is the MCP input for forking a universe.
type UniverseForkInput struct {
	UniverseID string `json:"universe_id" jsonschema:"source universe id"`
	Reason     string `json:"reason,omitempty" jsonschema:"why the fork is created"`
}

// UniverseForkResult is the MCP output for a fork.
type UniverseForkResult struct {
	Universe domain.Universe `json:"universe"`
}

func universeForkTool() *sdk.Tool {
	return &sdk.Tool{
		Name:        "universe_fork",
		Description: "Duplicates a universe and its residents into an independent fork",
	}
}

func universeForkHandler(engine *service.Engine) sdk.ToolHandlerFor[UniverseForkInput, UniverseForkResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, input UniverseForkInput) (*sdk.CallToolResult, UniverseForkResult, error) {
		forked, err := engine.ForkUniverse(ctx, input.UniverseID, input.Reason)
		if err != nil {
			return nil, UniverseForkResult{}, fmt.Errorf("universe fork failed: %w", err)
		}
		return nil, UniverseForkResult{Universe: forked}, nil
	}
}

// CharacterGetInput is the MCP input for reading a character.
type CharacterGetInput struct {
	CharacterID string `json:"character_id" jsonschema:"character id"`
}

// CharacterGetResult is the MCP output for a character read.
type CharacterGetResult struct {
	Character domain.Character `json:"character"`
}

func characterGetTool() *sdk.Tool {
	return &sdk.Tool{
		Name:        "character_get",
		Description: "Returns one character snapshot",
	}
}

func characterGetHandler(engine *service.Engine) sdk.ToolHandlerFor[CharacterGetInput, CharacterGetResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, input CharacterGetInput) (*sdk.CallToolResult, CharacterGetResult, error) {
		ch, err := engine.Character(ctx, input.CharacterID)
		if err != nil {
			return nil, CharacterGetResult{}, fmt.Errorf("character get failed: %w", err)
		}
		return nil, CharacterGetResult{Character: ch}, nil
	}
}

// UniverseGetInput is the MCP input for reading a universe.
type UniverseGetInput struct {
	UniverseID string `json:"universe_id" jsonschema:"universe id"`
}

// UniverseGetResult is the MCP output for a universe read.
type UniverseGetResult struct {
	Universe domain.Universe `json:"universe"`
}

func universeGetTool() *sdk.Tool {
	return &sdk.Tool{
		Name:        "universe_get",
		Description: "Returns one universe snapshot including rules, totals, and timeline",
	}
}

func universeGetHandler(engine *service.Engine) sdk.ToolHandlerFor[UniverseGetInput, UniverseGetResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, input UniverseGetInput) (*sdk.CallToolResult, UniverseGetResult, error) {
		u, err := engine.Universe(ctx, input.UniverseID)
		if err != nil {
			return nil, UniverseGetResult{}, fmt.Errorf("universe get failed: %w", err)
		}
		return nil, UniverseGetResult{Universe: u}, nil
	}
}

// MultiverseGetInput is the MCP input for reading the multiverse aggregate.
type MultiverseGetInput struct{}

// MultiverseGetResult is the MCP output for the multiverse aggregate.
type MultiverseGetResult struct {
	Multiverse domain.Multiverse `json:"multiverse"`
	Universes  []domain.Universe `json:"universes"`
}

func multiverseGetTool() *sdk.Tool {
	return &sdk.Tool{
		Name:        "multiverse_get",
		Description: "Returns the multiverse aggregate and every universe",
	}
}

func multiverseGetHandler(engine *service.Engine) sdk.ToolHandlerFor[MultiverseGetInput, MultiverseGetResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, _ MultiverseGetInput) (*sdk.CallToolResult, MultiverseGetResult, error) {
		multiverse, err := engine.Multiverse(ctx)
		if err != nil {
			return nil, MultiverseGetResult{}, fmt.Errorf("multiverse get failed: %w", err)
		}
		universes, err := engine.Universes(ctx)
		if err != nil {
			return nil, MultiverseGetResult{}, fmt.Errorf("multiverse get failed: %w", err)
		}
		return nil, MultiverseGetResult{Multiverse: multiverse, Universes: universes}, nil
	}
}

// EvaluationSubmitInput is the MCP input for submitting an evaluation.
type EvaluationSubmitInput struct {
	CharacterID string  `json:"character_id" jsonschema:"evaluated character id"`
	Student     string  `json:"student,omitempty" jsonschema:"evaluating student"`
	Kind        string  `json:"kind" jsonschema:"evaluation kind: hetero, auto, or professor"`
	Score       float64 `json:"score" jsonschema:"score in range 0..100"`
	Comments    string  `json:"comments,omitempty" jsonschema:"free-text comments"`
	ClassNumber int     `json:"class_number,omitempty" jsonschema:"class session number"`
}

// EvaluationSubmitResult is the MCP output for a submitted evaluation.
type EvaluationSubmitResult struct {
	Evaluation domain.Evaluation `json:"evaluation"`
}

func evaluationSubmitTool() *sdk.Tool {
	return &sdk.Tool{
		Name:        "evaluation_submit",
		Description: "Stores a hetero, auto, or professor evaluation for a character",
	}
}

func evaluationSubmitHandler(engine *service.Engine) sdk.ToolHandlerFor[EvaluationSubmitInput, EvaluationSubmitResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, input EvaluationSubmitInput) (*sdk.CallToolResult, EvaluationSubmitResult, error) {
		saved, err := engine.SubmitEvaluation(ctx, domain.CreateEvaluationInput{
			CharacterID: input.CharacterID,
			Student:     input.Student,
			Kind:        input.Kind,
			Score:       input.Score,
			Comments:    input.Comments,
			ClassNumber: input.ClassNumber,
		})
		if err != nil {
			return nil, EvaluationSubmitResult{}, fmt.Errorf("evaluation submit failed: %w", err)
		}
		return nil, EvaluationSubmitResult{Evaluation: saved}, nil
	}
}

// CharacterEvaluateInput is the MCP input for grading a character.
type CharacterEvaluateInput struct {
	CharacterID string `json:"character_id" jsonschema:"character id"`
}

func characterEvaluateTool() *sdk.Tool {
	return &sdk.Tool{
		Name:        "character_evaluate",
		Description: "Computes the weighted final grade for a character",
	}
}

func characterEvaluateHandler(engine *service.Engine) sdk.ToolHandlerFor[CharacterEvaluateInput, service.GradeReport] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, input CharacterEvaluateInput) (*sdk.CallToolResult, service.GradeReport, error) {
		report, err := engine.EvaluateCharacter(ctx, input.CharacterID)
		if err != nil {
			return nil, service.GradeReport{}, fmt.Errorf("character evaluate failed: %w", err)
		}
		return nil, report, nil
	}
}

// MarketListInput is the MCP input for listing market items.
type MarketListInput struct{}

// MarketListResult is the MCP output for the market listing.
type MarketListResult struct {
	Items []domain.MarketItem `json:"items"`
}

func marketListTool() *sdk.Tool {
	return &sdk.Tool{
		Name:        "market_list",
		Description: "Lists the purchasable market items",
	}
}

func marketListHandler(engine *service.Engine) sdk.ToolHandlerFor[MarketListInput, MarketListResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, _ MarketListInput) (*sdk.CallToolResult, MarketListResult, error) {
		items, err := engine.MarketItems(ctx)
		if err != nil {
			return nil, MarketListResult{}, fmt.Errorf("market list failed: %w", err)
		}
		return nil, MarketListResult{Items: items}, nil
	}
}

// MarketBuyInput is the MCP input for buying a market item.
type MarketBuyInput struct {
	CharacterID string `json:"character_id" jsonschema:"buying character id"`
	ItemID      string `json:"item_id" jsonschema:"market item id"`
}

// MarketBuyResult is the MCP output for a purchase.
type MarketBuyResult struct {
	Character domain.Character  `json:"character"`
	Item      domain.MarketItem `json:"item"`
}

func marketBuyTool() *sdk.Tool {
	return &sdk.Tool{
		Name:        "market_buy",
		Description: "Buys a market item, deducting its price and adding it to the inventory",
	}
}

func marketBuyHandler(shop *market.Shop) sdk.ToolHandlerFor[MarketBuyInput, MarketBuyResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, input MarketBuyInput) (*sdk.CallToolResult, MarketBuyResult, error) {
		ch, item, err := shop.Buy(ctx, input.CharacterID, input.ItemID)
		if err != nil {
			return nil, MarketBuyResult{}, fmt.Errorf("market buy failed: %w", err)
		}
		return nil, MarketBuyResult{Character: ch, Item: item}, nil
	}
}

// InventoryUseInput is the MCP input for using an inventory item.
type InventoryUseInput struct {
	CharacterID string `json:"character_id" jsonschema:"character id"`
	ItemID      string `json:"item_id" jsonschema:"inventory item id"`
	Student     string `json:"student,omitempty" jsonschema:"student identifier"`
	ClassNumber int    `json:"class_number,omitempty" jsonschema:"class session number"`
}

// InventoryUseResult is the MCP output for item use.
type InventoryUseResult struct {
	Outcome   apply.Outcome    `json:"outcome"`
	Character domain.Character `json:"character"`
}

func inventoryUseTool() *sdk.Tool {
	return &sdk.Tool{
		Name:        "inventory_use",
		Description: "Uses an inventory item, applying its effects and consuming it if applicable",
	}
}

func inventoryUseHandler(shop *market.Shop) sdk.ToolHandlerFor[InventoryUseInput, InventoryUseResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, input InventoryUseInput) (*sdk.CallToolResult, InventoryUseResult, error) {
		outcome, ch, err := shop.UseItem(ctx, market.UseItemInput{
			CharacterID: input.CharacterID,
			ItemID:      input.ItemID,
			Student:     input.Student,
			ClassNumber: input.ClassNumber,
		})
		if err != nil {
			return nil, InventoryUseResult{}, fmt.Errorf("inventory use failed: %w", err)
		}
		return nil, InventoryUseResult{Outcome: outcome, Character: ch}, nil
	}
}

// MissionStartInput is the MCP input for opening a mission scene.
type MissionStartInput struct {
	MissionID   string `json:"mission_id" jsonschema:"mission id"`
	CharacterID string `json:"character_id" jsonschema:"character opening the mission"`
	Student     string `json:"student,omitempty" jsonschema:"student identifier"`
	ClassNumber int    `json:"class_number,omitempty" jsonschema:"class session number"`
}

func missionStartTool() *sdk.Tool {
	return &sdk.Tool{
		Name:        "mission_start",
		Description: "Opens a mission scene for a character and narrates its briefing",
	}
}

func missionStartHandler(engine *service.Engine) sdk.ToolHandlerFor[MissionStartInput, ActionPerformResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, input MissionStartInput) (*sdk.CallToolResult, ActionPerformResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, generatorTimeout)
		defer cancel()

		result, err := engine.StartMission(runCtx, service.MissionInput{
			MissionID:   input.MissionID,
			CharacterID: input.CharacterID,
			Student:     input.Student,
			ClassNumber: input.ClassNumber,
		})
		if err != nil {
			return nil, ActionPerformResult{}, fmt.Errorf("mission start failed: %w", err)
		}
		return nil, ActionPerformResult{
			Event:     result.Event,
			Outcome:   result.Outcome,
			Narrative: result.Narrative,
		}, nil
	}
}

// MissionListInput is the MCP input for listing missions.
type MissionListInput struct{}

// MissionListResult is the MCP output for the mission listing.
type MissionListResult struct {
	Missions []domain.Mission `json:"missions"`
}

func missionListTool() *sdk.Tool {
	return &sdk.Tool{
		Name:        "mission_list",
		Description: "Lists the available missions",
	}
}

func missionListHandler(engine *service.Engine) sdk.ToolHandlerFor[MissionListInput, MissionListResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, _ MissionListInput) (*sdk.CallToolResult, MissionListResult, error) {
		missions, err := engine.Missions(ctx)
		if err != nil {
			return nil, MissionListResult{}, fmt.Errorf("mission list failed: %w", err)
		}
		return nil, MissionListResult{Missions: missions}, nil
	}
}
