// Command teatrace-seed populates a running teatraced instance with sample
// participants and products, and offers small inspection subcommands for
// manual testing.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"teatrace/pkg/client"
	"teatrace/pkg/domain"
)

const (
	authorityIdentity   = "authority"
	farmerIdentity      = "farmer"
	processorIdentity   = "processor"
	warehouseIdentity   = "warehouse"
	distributorIdentity = "distributor"
	retailerIdentity    = "retailer"
)

type seedParticipant struct {
	Identity string
	Role     domain.Role
	Name     string
	Location string
}

var seedParticipants = []seedParticipant{
	{farmerIdentity, domain.RoleFarmer, "Raj Tea Estate", "Darjeeling, West Bengal, India"},
	{processorIdentity, domain.RoleProcessor, "Himalayan Tea Processing Ltd", "Siliguri, West Bengal, India"},
	{warehouseIdentity, domain.RoleWarehouse, "Bengal Tea Storage Co", "Kolkata, West Bengal, India"},
	{distributorIdentity, domain.RoleDistributor, "India Tea Exports Pvt Ltd", "Mumbai, Maharashtra, India"},
	{retailerIdentity, domain.RoleRetailer, "Premium Tea House", "Mumbai, Maharashtra, India"},
}

type seedProduct struct {
	client.CreateProductRequest
	// Advance counts how many stages past Cultivation the product moves,
	// giving the seeded ledger one product per stage of the chain.
	Advance int
}

var seedProducts = []seedProduct{
	{client.CreateProductRequest{
		BatchID: "DAR-2024-001", Name: "Darjeeling First Flush",
		Origin: "Darjeeling, West Bengal", Grade: "FTGFOP1", Quantity: 500,
		Notes: "Premium first flush from high altitude gardens, muscatel flavor",
	}, 1},
	{client.CreateProductRequest{
		BatchID: "ASS-2024-002", Name: "Assam Black Tea",
		Origin: "Assam, India", Grade: "PEKOE", Quantity: 1000,
		Notes: "Strong malty flavor, perfect for breakfast blend",
	}, 2},
	{client.CreateProductRequest{
		BatchID: "NIL-2024-003", Name: "Nilgiri Orange Pekoe",
		Origin: "Nilgiri Hills, Tamil Nadu", Grade: "OP", Quantity: 750,
		Notes: "Citrusy and bright, high grown tea with excellent color",
	}, 3},
	{client.CreateProductRequest{
		BatchID: "DAR-2024-004", Name: "Darjeeling Second Flush",
		Origin: "Darjeeling, West Bengal", Grade: "SFTGFOP", Quantity: 300,
		Notes: "Rich amber liquor with distinctive muscatel character",
	}, 4},
	{client.CreateProductRequest{
		BatchID: "ASS-2024-005", Name: "Assam CTC",
		Origin: "Assam, India", Grade: "CTC-BOP", Quantity: 2000,
		Notes: "Crush, Tear, Curl processed for strong liquor and quick brewing",
	}, 5},
}

var stageNotes = map[domain.Stage]string{
	domain.StageProcessing:   "Withering completed in 14 hours, oxidation controlled at 85%",
	domain.StageWarehousing:  "Stored in climate-controlled warehouse, humidity 60%",
	domain.StageDistribution: "Loaded for distribution to major cities across India",
	domain.StageRetail:       "Received at retail store, quality verified and approved",
	domain.StageSold:         "Sold to premium tea connoisseur, customer satisfaction ensured",
}

// handlerFor maps a target stage to the seeded identity allowed to perform it.
func handlerFor(target domain.Stage) string {
	switch target {
	case domain.StageProcessing:
		return processorIdentity
	case domain.StageWarehousing:
		return warehouseIdentity
	case domain.StageDistribution:
		return distributorIdentity
	default:
		return retailerIdentity
	}
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if err := newRootCmd(logger).Execute(); err != nil {
		logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newRootCmd(logger zerolog.Logger) *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:           "teatrace-seed",
		Short:         "Seed and inspect a running teatraced instance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&baseURL, "server", "http://localhost:8080", "teatraced base URL")

	cmd.AddCommand(
		newBootstrapCmd(&baseURL, logger),
		newRegisterParticipantsCmd(&baseURL, logger),
		newAddTestDataCmd(&baseURL, logger),
		newListProductsCmd(&baseURL),
		newListParticipantsCmd(&baseURL),
		newCheckParticipantCmd(&baseURL),
		newTraceCmd(&baseURL),
	)
	return cmd
}

func newBootstrapCmd(baseURL *string, logger zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Register the first Authority",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := client.New(*baseURL)
			p, err := c.Bootstrap(cmd.Context(), client.BootstrapRequest{
				Identity: authorityIdentity,
				Name:     "Tea Board of India",
				Location: "Kolkata, West Bengal, India",
			})
			if err != nil {
				return err
			}
			logger.Info().Str("identity", p.Identity).Str("role", p.Role.String()).Msg("authority registered")
			return nil
		},
	}
}

func newRegisterParticipantsCmd(baseURL *string, logger zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "register-participants",
		Short: "Register the full set of sample participants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := client.New(*baseURL, client.WithCaller(authorityIdentity))
			for _, sp := range seedParticipants {
				p, err := c.RegisterParticipant(cmd.Context(), client.RegisterParticipantRequest{
					Identity: sp.Identity,
					Role:     sp.Role,
					Name:     sp.Name,
					Location: sp.Location,
				})
				if err != nil {
					return fmt.Errorf("register %s: %w", sp.Name, err)
				}
				logger.Info().Str("identity", p.Identity).Str("role", p.Role.String()).Str("name", p.Name).Msg("registered")
			}
			return nil
		},
	}
}

func newAddTestDataCmd(baseURL *string, logger zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "add-test-data",
		Short: "Create sample products and walk each a different distance along the chain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			farmer := client.New(*baseURL, client.WithCaller(farmerIdentity))
			for _, sp := range seedProducts {
				product, err := farmer.CreateProduct(ctx, sp.CreateProductRequest)
				if err != nil {
					return fmt.Errorf("create %s: %w", sp.BatchID, err)
				}
				logger.Info().Uint64("id", product.ID).Str("batch", product.BatchID).Msg("product created")
				if err := advance(ctx, *baseURL, product.ID, sp.Advance, logger); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func advance(ctx context.Context, baseURL string, id uint64, steps int, logger zerolog.Logger) error {
	stage := domain.StageCultivation
	for i := 0; i < steps; i++ {
		target := stage + 1
		handler := handlerFor(target)
		c := client.New(baseURL, client.WithCaller(handler))
		product, err := c.UpdateStage(ctx, id, client.UpdateStageRequest{
			Target: target,
			Notes:  stageNotes[target],
		})
		if err != nil {
			return fmt.Errorf("advance product %d to %s: %w", id, target, err)
		}
		logger.Info().Uint64("id", id).Str("stage", product.CurrentStage.String()).Str("handler", handler).Msg("stage advanced")
		stage = target
	}
	return nil
}

func newListProductsCmd(baseURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list-products",
		Short: "Print every product on the ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := client.New(*baseURL)
			products, err := c.ListProducts(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range products {
				fmt.Printf("#%d %s %q origin=%s grade=%s qty=%dkg stage=%s owner=%s\n",
					p.ID, p.BatchID, p.Name, p.Origin, p.Grade, p.Quantity, p.CurrentStage, p.CurrentOwner)
			}
			counts, err := c.Counts(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("total=%d active=%d sold=%d\n", counts.Total, counts.Active, counts.Sold)
			return nil
		},
	}
}

func newListParticipantsCmd(baseURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list-participants",
		Short: "Print every registered participant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := client.New(*baseURL)
			participants, err := c.ListParticipants(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range participants {
				fmt.Printf("%s role=%s active=%t name=%q location=%q\n",
					p.Identity, p.Role, p.Active, p.Name, p.Location)
			}
			return nil
		},
	}
}

func newCheckParticipantCmd(baseURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-participant <identity>",
		Short: "Print one participant's stored record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(*baseURL)
			p, err := c.GetParticipant(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("identity=%s role=%s active=%t name=%q location=%q\n",
				p.Identity, p.Role, p.Active, p.Name, p.Location)
			return nil
		},
	}
}

func newTraceCmd(baseURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "trace <product-id>",
		Short: "Print a product's full journey",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid product id %q", args[0])
			}
			c := client.New(*baseURL)
			report, err := c.Trace(cmd.Context(), id)
			if err != nil {
				return err
			}
			p := report.Product
			fmt.Printf("#%d %s %q stage=%s owner=%s\n", p.ID, p.BatchID, p.Name, p.CurrentStage, p.CurrentOwner)
			for _, e := range report.History {
				fmt.Printf("  [%d] %s by %s at %s", e.Seq, e.Stage, e.Handler, e.Timestamp.Format("2006-01-02 15:04:05"))
				if e.Notes != "" {
					fmt.Printf(" - %s", e.Notes)
				}
				fmt.Println()
			}
			for _, stage := range report.Pending {
				fmt.Printf("  [ ] %s (pending)\n", stage)
			}
			return nil
		},
	}
}
