package schema

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostSchema() *Schema {
	s := NewSchema("Post")
	s.MustAttribute(&Attribute{Name: "id", Kind: KindInteger, Filterable: FilterAlways, Sortable: true})
	s.MustAttribute(&Attribute{Name: "title", Kind: KindString, Filterable: FilterAlways, Sortable: true})
	s.MustAssociation(&Association{Name: "author", Target: "User", Kind: BelongsTo, Filterable: true})
	return s
}

func newUserSchema() *Schema {
	s := NewSchema("User")
	s.MustAttribute(&Attribute{Name: "id", Kind: KindInteger, Filterable: FilterAlways})
	s.MustAssociation(&Association{Name: "posts", Target: "Post", Kind: HasMany, Filterable: true})
	return s
}

func TestRegistry(t *testing.T) {
	t.Run("register and get schema", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(newPostSchema()))

		retrieved, exists := registry.Get("Post")
		require.True(t, exists)
		assert.Equal(t, "Post", retrieved.Name)
		assert.Equal(t, "posts", retrieved.Table)
	})

	t.Run("duplicate registration", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(newPostSchema()))

		err := registry.Register(newPostSchema())
		assert.True(t, errors.Is(err, ErrDuplicateName))
	})

	t.Run("seal resolves forward references", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(newPostSchema()))
		require.NoError(t, registry.Register(newUserSchema()))
		require.NoError(t, registry.Seal())

		post, err := registry.Lookup("Post")
		require.NoError(t, err)
		author, ok := post.Association("author")
		require.True(t, ok)
		require.NotNil(t, author.TargetSchema())
		assert.Equal(t, "User", author.TargetSchema().Name)
		assert.Equal(t, "author_id", author.ForeignKey)

		user, _ := registry.Get("User")
		posts, _ := user.Association("posts")
		assert.Equal(t, "user_id", posts.ForeignKey)
		assert.True(t, posts.Collection())
	})

	t.Run("seal fails on unknown target", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(newPostSchema()))

		err := registry.Seal()
		assert.True(t, errors.Is(err, ErrUnknownResource))
		assert.False(t, registry.Sealed())
	})

	t.Run("seal fails without primary key attribute", func(t *testing.T) {
		registry := NewRegistry()
		s := NewSchema("Tag")
		s.MustAttribute(&Attribute{Name: "name", Kind: KindString})
		require.NoError(t, registry.Register(s))

		err := registry.Seal()
		assert.True(t, errors.Is(err, ErrInvalidDefinition))
	})

	t.Run("failed seal resolves nothing", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(newPostSchema()))
		require.NoError(t, registry.Register(newUserSchema()))
		zone := NewSchema("Zone")
		zone.MustAttribute(&Attribute{Name: "name", Kind: KindString})
		require.NoError(t, registry.Register(zone))

		err := registry.Seal()
		assert.True(t, errors.Is(err, ErrInvalidDefinition))
		assert.False(t, registry.Sealed())

		post, _ := registry.Get("Post")
		author, ok := post.Association("author")
		require.True(t, ok)
		assert.Nil(t, author.TargetSchema())
		assert.Empty(t, author.ForeignKey)
	})

	t.Run("sealed registry rejects changes", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(newPostSchema()))
		require.NoError(t, registry.Register(newUserSchema()))
		require.NoError(t, registry.Seal())

		err := registry.Register(NewSchema("Comment"))
		assert.True(t, errors.Is(err, ErrSealed))

		post, _ := registry.Get("Post")
		err = post.AddAttribute(&Attribute{Name: "body", Kind: KindString})
		assert.True(t, errors.Is(err, ErrSealed))
	})

	t.Run("lookup before seal", func(t *testing.T) {
		registry := NewRegistry()
		_, err := registry.Lookup("Post")
		assert.True(t, errors.Is(err, ErrNotSealed))
	})

	t.Run("list and count", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(newUserSchema()))
		require.NoError(t, registry.Register(newPostSchema()))

		assert.Equal(t, []string{"Post", "User"}, registry.List())
		assert.Equal(t, 2, registry.Count())
		assert.True(t, registry.Exists("User"))
		assert.False(t, registry.Exists("Comment"))
	})

	t.Run("concurrent reads after seal", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(newPostSchema()))
		require.NoError(t, registry.Register(newUserSchema()))
		require.NoError(t, registry.Seal())

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s, err := registry.Lookup("Post")
				assert.NoError(t, err)
				_, ok := s.Attribute("title")
				assert.True(t, ok)
			}()
		}
		wg.Wait()
	})
}

func TestSchemaNames(t *testing.T) {
	s := NewSchema("Post")
	require.NoError(t, s.AddAttribute(&Attribute{Name: "title", Kind: KindString}))

	err := s.AddAssociation(&Association{Name: "title", Target: "User"})
	assert.True(t, errors.Is(err, ErrDuplicateName))

	err = s.AddAssociation(&Association{Name: "author"})
	assert.True(t, errors.Is(err, ErrInvalidDefinition))

	assert.Equal(t, "line_items", NewSchema("LineItem").Table)
	assert.Equal(t, "categories", NewSchema("Category").Table)
	assert.Equal(t, "addresses", NewSchema("Address").Table)
}

func TestRegistryCycles(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(newPostSchema()))
	require.NoError(t, registry.Register(newUserSchema()))

	node := NewSchema("Node")
	node.MustAttribute(&Attribute{Name: "id", Kind: KindInteger})
	node.MustAssociation(&Association{Name: "parent", Target: "Node", Kind: BelongsTo})
	require.NoError(t, registry.Register(node))
	require.NoError(t, registry.Seal())

	cycles := registry.Cycles()
	require.Len(t, cycles, 2)
	assert.Equal(t, []string{"Node"}, cycles[0])
	assert.Equal(t, []string{"Post", "User"}, cycles[1])
	assert.Equal(t, "Post -> User -> Post", FormatCycle(cycles[1]))
}
