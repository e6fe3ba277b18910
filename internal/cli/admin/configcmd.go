package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/studium-labs/studium/internal/config"
	"github.com/studium-labs/studium/internal/database"
	"github.com/studium-labs/studium/internal/domain"
	"github.com/studium-labs/studium/internal/repository"
)

func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage chat configuration",
		Long:  "Inspect and change the retrieval and tool-calling configuration",
	}

	cmd.AddCommand(ConfigShowCmd())
	cmd.AddCommand(ConfigSetCmd())

	return cmd
}

func ConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current chat configuration",
		RunE:  runConfigShow,
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	cfg, err := repository.NewChatConfigRepository(pool).Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func ConfigSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one chat configuration field",
		Long: `Set one chat configuration field and persist the full record.

Keys:
  default_top_k                (int)
  max_top_k                    (int)
  similarity_threshold         (float)
  tool_calling_enabled         (bool)
  tool_calling_max_iterations  (int)
  tool_similarity_relaxation   (float)
  include_rag_instruction      (bool)
  prompt_refine                (string)`,
		Args: cobra.ExactArgs(2),
		RunE: runConfigSet,
	}

	return cmd
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	key, value := args[0], args[1]

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := repository.NewChatConfigRepository(pool)
	cfg, err := repo.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := applyConfigField(cfg, key, value); err != nil {
		return err
	}
	cfg.UpdatedAt = time.Now().UTC()

	if err := domain.ValidateChatConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := repo.Update(ctx, cfg); err != nil {
		return fmt.Errorf("failed to update config: %w", err)
	}

	fmt.Printf("%s = %s\n", key, value)
	return nil
}

func applyConfigField(cfg *domain.ChatConfig, key, value string) error {
	switch key {
	case "default_top_k":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s expects an integer: %w", key, err)
		}
		cfg.DefaultTopK = v
	case "max_top_k":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s expects an integer: %w", key, err)
		}
		cfg.MaxTopK = v
	case "similarity_threshold":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s expects a float: %w", key, err)
		}
		cfg.SimilarityThreshold = v
	case "tool_calling_enabled":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s expects a bool: %w", key, err)
		}
		cfg.ToolCallingEnabled = v
	case "tool_calling_max_iterations":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s expects an integer: %w", key, err)
		}
		cfg.ToolCallingMaxIterations = v
	case "tool_similarity_relaxation":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s expects a float: %w", key, err)
		}
		cfg.ToolSimilarityRelaxation = v
	case "include_rag_instruction":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s expects a bool: %w", key, err)
		}
		cfg.IncludeRAGInstruction = v
	case "prompt_refine":
		cfg.PromptRefine = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func getDBPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return database.NewPool(ctx, cfg.DatabaseURL)
}
