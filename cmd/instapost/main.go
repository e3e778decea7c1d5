package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/timetree-tools/notionsync/internal/instagram"
)

func main() {
	accessToken := flag.String("token", strings.TrimSpace(os.Getenv("INSTAGRAM_ACCESS_TOKEN")), "Graph API access token")
	accountID := flag.String("account", strings.TrimSpace(os.Getenv("INSTAGRAM_ACCOUNT_ID")), "Instagram business account id")
	apiVersion := flag.String("api-version", envOrDefault("INSTAGRAM_API_VERSION", "v24.0"), "Graph API version")
	imageURL := flag.String("image", "", "public image URL to post")
	videoURL := flag.String("reel", "", "public video URL to post as a reel")
	carousel := flag.String("carousel", "", "comma-separated public image URLs (2-10) to post as a carousel")
	caption := flag.String("caption", "", "post caption")
	recent := flag.Int("recent", 0, "list the N most recent posts and exit")
	info := flag.Bool("account-info", false, "print account info and exit")
	flag.Parse()

	client, err := instagram.NewClient(instagram.Options{
		AccessToken: *accessToken,
		AccountID:   *accountID,
		APIVersion:  *apiVersion,
		Logger:      log.Default(),
	})
	if err != nil {
		log.Fatalf("failed to initialize instagram client: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *info:
		account, err := client.AccountInfo(ctx)
		if err != nil {
			log.Fatalf("failed to fetch account info: %v", err)
		}
		log.Printf("@%s (%s): %d followers, %d posts",
			account.Username, account.Name, account.FollowersCount, account.MediaCount)

	case *recent > 0:
		media, err := client.RecentMedia(ctx, *recent)
		if err != nil {
			log.Fatalf("failed to fetch recent media: %v", err)
		}
		for _, m := range media {
			log.Printf("%s %s %s %s", m.ID, m.MediaType, m.Timestamp, m.Permalink)
		}

	case *carousel != "":
		urls := splitURLs(*carousel)
		postID, err := client.PostCarousel(ctx, urls, *caption)
		if err != nil {
			log.Fatalf("carousel post failed: %v", err)
		}
		log.Printf("posted carousel %s", postID)

	case *videoURL != "":
		postID, err := client.PostReel(ctx, *videoURL, *caption, true)
		if err != nil {
			log.Fatalf("reel post failed: %v", err)
		}
		log.Printf("posted reel %s", postID)

	case *imageURL != "":
		postID, err := client.PostImage(ctx, *imageURL, *caption)
		if err != nil {
			log.Fatalf("image post failed: %v", err)
		}
		log.Printf("posted image %s", postID)

	default:
		log.Fatalf("nothing to do: pass -image, -reel, -carousel, -recent or -account-info")
	}
}

func splitURLs(raw string) []string {
	parts := strings.Split(raw, ",")
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}
