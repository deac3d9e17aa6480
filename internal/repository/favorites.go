package repository

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrInvalidFavorite = errors.New("favorite name and query must not be empty")
	ErrNotOwner        = errors.New("only the creator can remove this favorite")
)

type FavoritesService struct {
	repo *Repo
}

func NewFavoritesService(repo *Repo) *FavoritesService {
	return &FavoritesService{repo: repo}
}

func (f *FavoritesService) Create(ctx context.Context, guild, author, name, query string) error {
	name = strings.TrimSpace(name)
	query = strings.TrimSpace(query)
	if name == "" || query == "" {
		return ErrInvalidFavorite
	}
	return f.repo.AddFavorite(ctx, &Favorite{
		GuildID: guild, Author: author, Name: name, Query: query,
	})
}

// Remove deletes name. Only its author may remove it unless force is set.
func (f *FavoritesService) Remove(ctx context.Context, guild, author, name string, force bool) error {
	fav, err := f.repo.FindFavorite(ctx, guild, strings.TrimSpace(name))
	if err != nil {
		return err
	}
	if !force && fav.Author != author {
		return ErrNotOwner
	}
	_, err = f.repo.RemoveFavorite(ctx, guild, fav.Name)
	return err
}

func (f *FavoritesService) Use(ctx context.Context, guild, name string) (*Favorite, error) {
	return f.repo.FindFavorite(ctx, guild, strings.TrimSpace(name))
}

func (f *FavoritesService) List(ctx context.Context, guild string) ([]Favorite, error) {
	return f.repo.ListFavorites(ctx, guild)
}

func (f *FavoritesService) Suggest(ctx context.Context, guild, prefix string) ([]string, error) {
	return f.repo.FavoriteNames(ctx, guild, strings.TrimSpace(prefix), 25)
}
