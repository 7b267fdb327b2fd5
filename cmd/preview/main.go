package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/DevRickLin/feishu-greeter/internal/biz/domain"
	"github.com/DevRickLin/feishu-greeter/internal/biz/repo"
	"github.com/DevRickLin/feishu-greeter/internal/conf"
	"github.com/DevRickLin/feishu-greeter/internal/data"
	"github.com/DevRickLin/feishu-greeter/internal/infra/feishu"
)

func main() {
	groupID := flag.String("group", "", "chat ID of the group")
	kindName := flag.String("kind", string(domain.KindWelcome), "welcome or goodbye")
	name := flag.String("name", "Jane Doe", "sample member name")
	userID := flag.String("user", "ou_sample", "sample member open_id")
	send := flag.Bool("send", false, "send the rendered message to the group")
	flag.Parse()

	if *groupID == "" {
		fmt.Println("Usage: preview -group <chat_id> [-kind welcome|goodbye] [-name \"Jane Doe\"] [-send]")
		os.Exit(1)
	}
	kind, err := domain.ParseKind(*kindName)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg := conf.LoadFromEnv()
	if err := cfg.ValidateLocal(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := data.OpenDB(cfg.Store.DBPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	lc, err := data.NewConfigRepo(db).GetLifecycleConfig(ctx, *groupID, kind)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if lc == nil {
		fmt.Printf("No %s config for %s\n", kind, *groupID)
		os.Exit(1)
	}

	// Group metadata needs Feishu credentials; without them it renders empty
	var meta domain.GroupMeta
	var client *feishu.Client
	if cfg.Feishu.AppID != "" && cfg.Feishu.AppSecret != "" {
		client = feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, zerolog.Nop())
		groups := data.NewFeishuGroupRepo(client, data.NewRulesRepo(db), cfg.ToDataOptions().Group)
		meta = groupMeta(ctx, groups, *groupID, os.Stdout)
	} else {
		fmt.Println("Warning: FEISHU_APP_ID/FEISHU_APP_SECRET not set, group placeholders render empty")
	}

	user := domain.NewUserFromName(*userID, *name)
	text := domain.Render(lc.Content, domain.NewBindings(user, meta))

	fmt.Printf("enabled=%v delete_previous=%v send_as_dm=%v delete_after=%ds buttons=%v\n",
		lc.IsEnabled, lc.DeletePrevious, lc.SendAsDM, lc.DeleteAfterSeconds, lc.HasButtons)
	if unknown := domain.UnknownPlaceholders(lc.Content); len(unknown) > 0 {
		fmt.Printf("unknown placeholders: %v (available: %v)\n", unknown, domain.Placeholders())
	}
	fmt.Println("---")
	fmt.Println(text)

	if !*send {
		return
	}
	if client == nil {
		fmt.Println("Error: FEISHU_APP_ID and FEISHU_APP_SECRET must be set to send")
		os.Exit(1)
	}
	transport := data.NewFeishuTransport(client, nil, data.RateConfig{}, zerolog.Nop())
	var att *domain.Attachment
	if lc.HasButtons {
		att = &domain.Attachment{Buttons: lc.Buttons}
	}
	msgID, err := transport.Send(ctx, domain.GroupTarget(*groupID), text, att)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Message sent successfully! (%s)\n", msgID)
}

// groupMeta looks up the group placeholders, warning on w about each one
// that will render empty
func groupMeta(ctx context.Context, groups repo.GroupRepo, groupID string, w io.Writer) domain.GroupMeta {
	var meta domain.GroupMeta
	var err error
	if meta.Name, err = groups.GroupName(ctx, groupID); err != nil {
		fmt.Fprintf(w, "Warning: group name unavailable: %v\n", err)
	}
	if meta.MemberCount, err = groups.MemberCount(ctx, groupID); err != nil {
		fmt.Fprintf(w, "Warning: member count unavailable: %v\n", err)
	}
	if meta.RulesLink, err = groups.RulesLink(ctx, groupID); err != nil {
		fmt.Fprintf(w, "Warning: rules link unavailable: %v\n", err)
	}
	return meta
}
